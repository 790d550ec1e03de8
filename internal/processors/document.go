package processors

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/unidoc/unioffice/document"

	"github.com/example/uploadkit/internal/models"
)

// DocumentProcessor extracts metadata from Microsoft Word documents (.docx)
type DocumentProcessor struct{}

// NewDocumentProcessor creates a new Word document processor
func NewDocumentProcessor() *DocumentProcessor {
	return &DocumentProcessor{}
}

// Process processes a Word document
func (p *DocumentProcessor) Process(ctx context.Context, rec *models.FileRecord, opts Options) error {
	if !opts.ExtractMetadata {
		return nil
	}

	doc, err := document.Read(bytes.NewReader(rec.Payload), int64(len(rec.Payload)))
	if err != nil {
		return fmt.Errorf("failed to parse Word document: %w", err)
	}

	var textBuilder strings.Builder
	paraCount := 0

	for _, para := range doc.Paragraphs() {
		paraCount++
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}

	extractedText := textBuilder.String()
	numWords := len(strings.Fields(extractedText))

	rec.Metadata["paragraphs"] = fmt.Sprintf("%d", paraCount)
	rec.Metadata["words"] = fmt.Sprintf("%d", numWords)
	rec.Metadata["characters"] = fmt.Sprintf("%d", len(extractedText))

	cp := doc.CoreProperties

	if creator := cp.Author(); creator != "" {
		rec.Metadata["author"] = creator
	}

	if title := cp.Title(); title != "" {
		rec.Metadata["title"] = title
	}

	if description := cp.Description(); description != "" {
		rec.Metadata["description"] = description
	}

	createdTime := cp.Created()
	if !createdTime.IsZero() {
		rec.Metadata["created"] = createdTime.Format(time.RFC3339)
	}

	modifiedTime := cp.Modified()
	if !modifiedTime.IsZero() {
		rec.Metadata["modified"] = modifiedTime.Format(time.RFC3339)
	}

	return nil
}

// CanProcess returns true if this processor can process the given content type
func (p *DocumentProcessor) CanProcess(contentType, ext string) bool {
	if contentType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" {
		return true
	}
	return ext == ".docx"
}

// Name identifies the processor in logs
func (p *DocumentProcessor) Name() string {
	return "document"
}
