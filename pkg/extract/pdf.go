package extract

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text from PDF files page by page.
type PDFExtractor struct{}

// NewPDFExtractor creates the primary PDF extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Name() string { return "pdf" }

func (e *PDFExtractor) Priority() int { return 10 }

func (e *PDFExtractor) CanExtract(path string, mimeType string) bool {
	if mimeType != "" {
		return mimeType == "application/pdf"
	}
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) ([]Segment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat pdf: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	var segments []Segment
	totalPages := reader.NumPage()

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		segments = append(segments, Segment{Text: text, Page: pageNum})
	}

	return segments, nil
}

var _ Extractor = (*PDFExtractor)(nil)

// PDFSalvageExtractor is the fallback for PDFs the structured parser cannot
// read. It scans raw content streams for text-showing operators, which
// recovers some text from malformed files. Scanned image-only PDFs still
// yield nothing.
type PDFSalvageExtractor struct{}

// NewPDFSalvageExtractor creates the fallback PDF extractor.
func NewPDFSalvageExtractor() *PDFSalvageExtractor {
	return &PDFSalvageExtractor{}
}

func (e *PDFSalvageExtractor) Name() string { return "pdf-salvage" }

func (e *PDFSalvageExtractor) Priority() int { return 5 }

func (e *PDFSalvageExtractor) CanExtract(path string, mimeType string) bool {
	if mimeType != "" {
		return mimeType == "application/pdf"
	}
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

var (
	streamPattern = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
	// Tj and TJ text-showing operators with a literal string operand
	textShowPattern = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*(?:Tj|TJ)`)
	escapePattern   = regexp.MustCompile(`\\([nrtbf()\\])`)
)

func (e *PDFSalvageExtractor) Extract(ctx context.Context, path string) ([]Segment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	var sb strings.Builder
	for _, m := range streamPattern.FindAllSubmatch(raw, -1) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		stream := m[1]
		if inflated, err := inflate(stream); err == nil {
			stream = inflated
		}

		for _, tm := range textShowPattern.FindAllSubmatch(stream, -1) {
			text := unescapePDFString(string(tm[1]))
			if strings.TrimSpace(text) == "" {
				continue
			}
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, nil
	}
	return []Segment{{Text: text}}, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(io.LimitReader(zr, 16<<20))
}

func unescapePDFString(s string) string {
	return escapePattern.ReplaceAllStringFunc(s, func(m string) string {
		switch m[1] {
		case 'n':
			return "\n"
		case 'r':
			return "\r"
		case 't':
			return "\t"
		case 'b', 'f':
			return ""
		default:
			return string(m[1])
		}
	})
}

var _ Extractor = (*PDFSalvageExtractor)(nil)
