// Package chunker splits extracted text into overlapping retrieval chunks.
package chunker

import (
	"strings"
)

// DefaultSeparators order splitting from coarse (paragraphs) to fine
// (characters). The empty string is the terminal separator and always splits.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text recursively on a separator hierarchy,
// producing chunks close to Size characters with Overlap characters of
// shared context between neighbors.
type RecursiveChunker struct {
	Size       int
	Overlap    int
	Separators []string
}

// New creates a chunker with the given size and overlap in characters.
func New(size, overlap int) *RecursiveChunker {
	return &RecursiveChunker{
		Size:       size,
		Overlap:    overlap,
		Separators: DefaultSeparators,
	}
}

// Split divides text into chunks. Splitting is deterministic: the same
// input always yields the same chunks.
func (c *RecursiveChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	seps := c.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return c.split(text, seps)
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	// Pick the first separator present in the text; "" always matches.
	separator := separators[len(separators)-1]
	var remaining []string
	for i, s := range separators {
		if s == "" {
			separator = s
			remaining = nil
			break
		}
		if strings.Contains(text, s) {
			separator = s
			remaining = separators[i+1:]
			break
		}
	}

	splits := splitWithSeparator(text, separator)

	var chunks []string
	var good []string
	for _, s := range splits {
		if len(s) < c.Size {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, c.merge(good)...)
			good = nil
		}
		if len(remaining) == 0 {
			chunks = append(chunks, s)
		} else {
			chunks = append(chunks, c.split(s, remaining)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, c.merge(good)...)
	}
	return chunks
}

// splitWithSeparator splits text keeping the separator attached to the
// start of each following piece, so no characters are lost.
func splitWithSeparator(text, separator string) []string {
	if separator == "" {
		runes := []rune(text)
		out := make([]string, 0, len(runes))
		for _, r := range runes {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, separator)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = separator + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// merge greedily joins small splits into chunks of at most Size characters,
// carrying Overlap characters of trailing context into the next chunk.
func (c *RecursiveChunker) merge(splits []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, s := range splits {
		if total+len(s) > c.Size && len(current) > 0 {
			if doc := joinChunk(current); doc != "" {
				chunks = append(chunks, doc)
			}
			// Shed leading splits until the remainder fits the overlap budget.
			for total > c.Overlap || (total+len(s) > c.Size && total > 0) {
				total -= len(current[0])
				current = current[1:]
			}
		}
		current = append(current, s)
		total += len(s)
	}

	if doc := joinChunk(current); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}

func joinChunk(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}
