package extract

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"
)

// TextExtractor handles plain text files.
type TextExtractor struct{}

// NewTextExtractor creates the plain text extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) Name() string { return "text" }

// Priority is low so format-specific extractors win.
func (e *TextExtractor) Priority() int { return 1 }

func (e *TextExtractor) CanExtract(path string, mimeType string) bool {
	if mimeType != "" {
		return isTextMimeType(mimeType)
	}
	return !isBinaryFile(path)
}

func (e *TextExtractor) Extract(ctx context.Context, path string) ([]Segment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	content := cleanUTF8(string(raw))
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []Segment{{Text: content}}, nil
}

func isTextMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") ||
		mimeType == "application/json" ||
		mimeType == "application/xml" ||
		strings.Contains(mimeType, "javascript")
}

// isBinaryFile sniffs the first 512 bytes.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buffer := make([]byte, 512)
	n, err := f.Read(buffer)
	if err != nil || n == 0 {
		return false
	}
	return !isTextMimeType(http.DetectContentType(buffer[:n]))
}

// cleanUTF8 strips invalid byte sequences, rejecting mostly-binary input.
func cleanUTF8(content string) string {
	if utf8.ValidString(content) {
		return content
	}

	cleaned := strings.ToValidUTF8(content, "")
	invalidRatio := float64(len(content)-len(cleaned)) / float64(len(content))
	if invalidRatio > 0.5 {
		return ""
	}
	return cleaned
}

var _ Extractor = (*TextExtractor)(nil)
