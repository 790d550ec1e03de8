package processors

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/example/uploadkit/internal/models"
)

// TextProcessor extracts statistics from plain text files
type TextProcessor struct{}

// NewTextProcessor creates a new text processor
func NewTextProcessor() *TextProcessor {
	return &TextProcessor{}
}

// Process processes a text file
func (p *TextProcessor) Process(ctx context.Context, rec *models.FileRecord, opts Options) error {
	if !opts.ExtractMetadata {
		return nil
	}

	content := string(rec.Payload)
	lineCount, wordCount, charCount := countTextStats(content)

	rec.Metadata["lines"] = fmt.Sprintf("%d", lineCount)
	rec.Metadata["words"] = fmt.Sprintf("%d", wordCount)
	rec.Metadata["characters"] = fmt.Sprintf("%d", charCount)

	if utf8.ValidString(content) {
		rec.Metadata["encoding"] = "UTF-8"
	} else {
		rec.Metadata["encoding"] = "Unknown"
	}

	return nil
}

// CanProcess returns true if this processor can process the given content type
func (p *TextProcessor) CanProcess(contentType, ext string) bool {
	if strings.HasPrefix(contentType, "text/") {
		return true
	}

	textExts := []string{".txt", ".md", ".log", ".csv"}
	for _, textExt := range textExts {
		if ext == textExt {
			return true
		}
	}

	return false
}

// Name identifies the processor in logs
func (p *TextProcessor) Name() string {
	return "text"
}

// countTextStats counts lines, words, and characters in the content
func countTextStats(content string) (int, int, int) {
	if content == "" {
		return 0, 0, 0
	}

	lineCount := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		lineCount++
	}

	wordCount := len(strings.Fields(content))
	charCount := utf8.RuneCountInString(content)

	return lineCount, wordCount, charCount
}
