package processors

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"

	"github.com/example/uploadkit/internal/models"
)

// ImageProcessor recompresses oversized images and extracts image metadata.
// Images larger than the configured bounds are scaled down to fit while
// preserving aspect ratio and re-encoded as JPEG at the configured quality.
type ImageProcessor struct{}

// NewImageProcessor creates a new image processor
func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{}
}

// Process processes an image file
func (p *ImageProcessor) Process(ctx context.Context, rec *models.FileRecord, opts Options) error {
	img, format, err := image.Decode(bytes.NewReader(rec.Payload))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Scale down to fit the configured bounds, preserving aspect ratio
	targetW, targetH := fitWithin(width, height, opts.MaxWidth, opts.MaxHeight)
	resized := img
	if targetW != width || targetH != height {
		dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		resized = dst
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var encoded bytes.Buffer
	if err := jpeg.Encode(&encoded, resized, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to re-encode image: %w", err)
	}

	var thumbnail []byte
	if opts.GenerateThumbnail {
		thumbnail, err = renderThumbnail(resized, opts.ThumbnailSize, quality)
		if err != nil {
			return fmt.Errorf("failed to render thumbnail: %w", err)
		}
	}

	// All fallible work is done; commit the mutation
	rec.Payload = encoded.Bytes()
	rec.Size = int64(encoded.Len())
	rec.ContentType = "image/jpeg"
	rec.Thumbnail = thumbnail

	if opts.ExtractMetadata {
		rec.Metadata["width"] = fmt.Sprintf("%d", targetW)
		rec.Metadata["height"] = fmt.Sprintf("%d", targetH)
		rec.Metadata["originalWidth"] = fmt.Sprintf("%d", width)
		rec.Metadata["originalHeight"] = fmt.Sprintf("%d", height)
		rec.Metadata["originalFormat"] = format
		rec.Metadata["aspectRatio"] = fmt.Sprintf("%.2f", float64(width)/float64(height))
	}

	return nil
}

// CanProcess returns true if this processor can process the given content type
func (p *ImageProcessor) CanProcess(contentType, ext string) bool {
	if strings.HasPrefix(contentType, "image/") {
		return true
	}

	imageExts := []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}
	for _, imgExt := range imageExts {
		if ext == imgExt {
			return true
		}
	}

	return false
}

// Name identifies the processor in logs
func (p *ImageProcessor) Name() string {
	return "image"
}

// fitWithin computes the largest dimensions not exceeding maxW x maxH
// that preserve the source aspect ratio. Zero bounds mean unbounded.
func fitWithin(width, height, maxW, maxH int) (int, int) {
	scale := 1.0
	if maxW > 0 && width > maxW {
		scale = float64(maxW) / float64(width)
	}
	if maxH > 0 && float64(height)*scale > float64(maxH) {
		scale = float64(maxH) / float64(height)
	}
	if scale >= 1.0 {
		return width, height
	}

	w := int(float64(width) * scale)
	h := int(float64(height) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// renderThumbnail scales the image so its longest edge is size pixels and encodes it as JPEG
func renderThumbnail(img image.Image, size, quality int) ([]byte, error) {
	if size <= 0 {
		size = 128
	}

	bounds := img.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), size, size)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
