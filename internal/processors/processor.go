// Package processors provides pre-upload file transformations
package processors

import (
	"context"
	"log"
	"mime"
	"path/filepath"
	"strings"

	"github.com/example/uploadkit/internal/models"
)

// Options contains options for the processor chain
type Options struct {
	// Bounds for image recompression; images already within bounds are re-encoded only
	MaxWidth  int
	MaxHeight int

	// JPEG quality factor for recompressed images (1-100)
	Quality int

	// Longest edge of generated thumbnails in pixels
	ThumbnailSize int

	// Whether to extract metadata into the record's metadata map
	ExtractMetadata bool

	// Whether to generate a thumbnail for image files
	GenerateThumbnail bool
}

// Processor is one stage of the pre-upload transformation chain.
// A processor may replace the record's payload, augment its metadata map,
// or attach a thumbnail. Implementations must leave the record untouched
// when they return an error so the chain can continue with the prior state.
type Processor interface {
	// Name identifies the processor in logs
	Name() string

	// CanProcess reports whether this processor applies to the given content type or extension
	CanProcess(contentType, ext string) bool

	// Process applies the transformation in place
	Process(ctx context.Context, rec *models.FileRecord, opts Options) error
}

// Chain applies an ordered list of processors to an accepted file.
// Processor failures are non-fatal: they are logged and the chain continues.
type Chain struct {
	processors []Processor
	opts       Options
}

// NewChain creates a processor chain
func NewChain(opts Options, processors ...Processor) *Chain {
	return &Chain{
		processors: processors,
		opts:       opts,
	}
}

// Run applies every applicable processor to the record in order
func (c *Chain) Run(ctx context.Context, rec *models.FileRecord) {
	ext := strings.ToLower(filepath.Ext(rec.Name))

	for _, p := range c.processors {
		if !p.CanProcess(rec.ContentType, ext) {
			continue
		}
		if err := p.Process(ctx, rec, c.opts); err != nil {
			log.Printf("Processor %s failed for %s, continuing: %v", p.Name(), rec.Name, err)
		}
	}
}

// GetContentTypeByExt returns the content type based on file extension
func GetContentTypeByExt(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return "application/octet-stream"
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		return "application/octet-stream"
	}

	return contentType
}
