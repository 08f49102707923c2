// Package extract turns staged document files into text segments.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrNoContent is returned when a document yields no extractable text.
var ErrNoContent = errors.New("no extractable text content")

// Segment is one unit of extracted text, typically a page.
type Segment struct {
	Text string
	// Page is the 1-based page number, or 0 when the format has no pages.
	Page int
	// Source names the extractor that produced the segment.
	Source string
}

// Extractor extracts text segments from a staged file.
type Extractor interface {
	// Name identifies the extractor in logs and segment metadata.
	Name() string

	// CanExtract reports whether this extractor handles the file,
	// judged by path and detected MIME type.
	CanExtract(path string, mimeType string) bool

	// Extract reads the file and returns its text segments.
	Extract(ctx context.Context, path string) ([]Segment, error)

	// Priority orders extractors; higher runs first.
	Priority() int
}

// Registry holds extractors sorted by priority. When the preferred
// extractor fails, lower-priority extractors for the same file get a turn.
type Registry struct {
	extractors []Extractor
}

// NewRegistry creates a registry with the built-in extractors registered.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewPDFExtractor())
	r.Register(NewPDFSalvageExtractor())
	r.Register(NewOfficeExtractor())
	r.Register(NewTextExtractor())
	return r
}

// Register adds an extractor, keeping the list ordered by priority.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
	sort.SliceStable(r.extractors, func(i, j int) bool {
		return r.extractors[i].Priority() > r.extractors[j].Priority()
	})
}

// Extract runs the highest-priority matching extractor, falling back to the
// next match on failure. Returns ErrNoContent when every match produced
// nothing, and an error when no extractor matched at all.
func (r *Registry) Extract(ctx context.Context, path string, mimeType string) ([]Segment, error) {
	matched := false
	empty := false

	for _, e := range r.extractors {
		if !e.CanExtract(path, mimeType) {
			continue
		}
		matched = true

		segments, err := e.Extract(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("extractor failed, trying next",
				"extractor", e.Name(), "path", path, "error", err)
			continue
		}
		if len(segments) == 0 {
			empty = true
			continue
		}

		for i := range segments {
			segments[i].Source = e.Name()
		}
		return segments, nil
	}

	if empty {
		return nil, ErrNoContent
	}
	if !matched {
		return nil, fmt.Errorf("no extractor for file %s (mime: %s)", path, mimeType)
	}
	return nil, ErrNoContent
}

// CanExtract reports whether any registered extractor handles the file.
func (r *Registry) CanExtract(path string, mimeType string) bool {
	for _, e := range r.extractors {
		if e.CanExtract(path, mimeType) {
			return true
		}
	}
	return false
}
