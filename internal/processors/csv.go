package processors

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/example/uploadkit/internal/models"
)

// CSVProcessor extracts row/column structure from CSV files
type CSVProcessor struct{}

// NewCSVProcessor creates a new CSV processor
func NewCSVProcessor() *CSVProcessor {
	return &CSVProcessor{}
}

// Process processes a CSV file
func (p *CSVProcessor) Process(ctx context.Context, rec *models.FileRecord, opts Options) error {
	if !opts.ExtractMetadata {
		return nil
	}

	reader := csv.NewReader(bytes.NewReader(rec.Payload))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read CSV data: %w", err)
	}

	rowCount := len(records)
	var colCount int
	if rowCount > 0 {
		colCount = len(records[0])
	}

	rec.Metadata["rows"] = fmt.Sprintf("%d", rowCount)
	rec.Metadata["columns"] = fmt.Sprintf("%d", colCount)

	if rowCount > 0 {
		rec.Metadata["headers"] = strings.Join(records[0], ",")
	}

	return nil
}

// CanProcess returns true if this processor can process the given content type
func (p *CSVProcessor) CanProcess(contentType, ext string) bool {
	if strings.HasSuffix(contentType, "/csv") || strings.HasPrefix(contentType, "text/csv") {
		return true
	}
	return ext == ".csv"
}

// Name identifies the processor in logs
func (p *CSVProcessor) Name() string {
	return "csv"
}
