package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

const (
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// OfficeExtractor handles Word and Excel documents.
type OfficeExtractor struct{}

// NewOfficeExtractor creates the Office document extractor.
func NewOfficeExtractor() *OfficeExtractor {
	return &OfficeExtractor{}
}

func (e *OfficeExtractor) Name() string { return "office" }

func (e *OfficeExtractor) Priority() int { return 10 }

func (e *OfficeExtractor) CanExtract(path string, mimeType string) bool {
	if mimeType != "" {
		return mimeType == mimeDocx || mimeType == mimeXlsx
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".docx" || ext == ".xlsx"
}

func (e *OfficeExtractor) Extract(ctx context.Context, path string) ([]Segment, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return e.extractWord(path)
	case ".xlsx":
		return e.extractExcel(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported office format: %s", filepath.Ext(path))
	}
}

func (e *OfficeExtractor) extractWord(path string) ([]Segment, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse word document: %w", err)
	}
	defer doc.Close()

	content := strings.TrimSpace(doc.Editable().GetContent())
	if content == "" {
		return nil, nil
	}
	return []Segment{{Text: content}}, nil
}

func (e *OfficeExtractor) extractExcel(ctx context.Context, path string) ([]Segment, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse excel document: %w", err)
	}
	defer f.Close()

	var segments []Segment
	for sheetIdx, sheetName := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))
		cells := 0
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
			cells += len(row)
			// Limit cells per sheet to avoid huge outputs
			if cells >= 10000 {
				sb.WriteString("... (truncated)\n")
				break
			}
		}

		if strings.TrimSpace(sb.String()) != "" {
			segments = append(segments, Segment{Text: sb.String(), Page: sheetIdx + 1})
		}
	}

	return segments, nil
}

var _ Extractor = (*OfficeExtractor)(nil)
