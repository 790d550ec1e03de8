// Package validation provides pre-upload file validation
package validation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"path/filepath"
	"strings"

	"github.com/example/uploadkit/internal/models"
)

// Profile is a named constraint set applied to a file based on its document type
type Profile struct {
	Name              string   `json:"name"`
	AllowedExtensions []string `json:"allowedExtensions"`
	MaxFileSize       int64    `json:"maxFileSize"`
	RequiredMetadata  []string `json:"requiredMetadata"`
}

// Validator inspects a candidate file before it enters the upload pipeline.
// A blocking validator aborts acceptance on error; an advisory validator's
// error is attached to the record as a warning instead.
type Validator interface {
	Name() string
	Advisory() bool
	Validate(ctx context.Context, rec *models.FileRecord, profile *Profile) error
}

// Chain runs validators in a fixed order against a file and an optional profile
type Chain struct {
	validators []Validator
	profiles   map[string]*Profile

	// Fallback rules when no profile matches the file's document type
	globalExtensions []string
	globalMaxSize    int64
}

// NewChain creates a validator chain with the global fallback rules
func NewChain(globalExtensions []string, globalMaxSize int64, validators ...Validator) *Chain {
	return &Chain{
		validators:       validators,
		profiles:         make(map[string]*Profile),
		globalExtensions: globalExtensions,
		globalMaxSize:    globalMaxSize,
	}
}

// RegisterProfile registers a document-type profile by name
func (c *Chain) RegisterProfile(profile *Profile) {
	c.profiles[profile.Name] = profile
}

// Run validates the record. A blocking failure is returned as the error;
// advisory failures are appended to the record's warnings.
func (c *Chain) Run(ctx context.Context, rec *models.FileRecord) error {
	profile := c.resolveProfile(rec)

	for _, v := range c.validators {
		if err := v.Validate(ctx, rec, profile); err != nil {
			if v.Advisory() {
				log.Printf("Validation warning for %s (%s): %v", rec.Name, v.Name(), err)
				rec.Warnings = append(rec.Warnings, err.Error())
				continue
			}
			return err
		}
	}

	return nil
}

// resolveProfile returns the profile for the record's document type, or a
// synthetic profile built from the global rules when none matches.
func (c *Chain) resolveProfile(rec *models.FileRecord) *Profile {
	if rec.DocumentType != "" {
		if p, ok := c.profiles[rec.DocumentType]; ok {
			return p
		}
	}
	return &Profile{
		Name:              "global",
		AllowedExtensions: c.globalExtensions,
		MaxFileSize:       c.globalMaxSize,
	}
}

// ExtensionValidator rejects files whose extension is not allowed
type ExtensionValidator struct{}

func (v *ExtensionValidator) Name() string   { return "extension" }
func (v *ExtensionValidator) Advisory() bool { return false }

func (v *ExtensionValidator) Validate(ctx context.Context, rec *models.FileRecord, profile *Profile) error {
	if len(profile.AllowedExtensions) == 0 {
		return nil
	}

	ext := strings.ToLower(filepath.Ext(rec.Name))
	for _, allowed := range profile.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}

	return fmt.Errorf("file %s has disallowed extension %q (allowed: %s)",
		rec.Name, ext, strings.Join(profile.AllowedExtensions, ", "))
}

// SizeValidator rejects files exceeding the profile's maximum size
type SizeValidator struct{}

func (v *SizeValidator) Name() string   { return "size" }
func (v *SizeValidator) Advisory() bool { return false }

func (v *SizeValidator) Validate(ctx context.Context, rec *models.FileRecord, profile *Profile) error {
	if profile.MaxFileSize <= 0 {
		return nil
	}

	if rec.Size > profile.MaxFileSize {
		return fmt.Errorf("file %s is %d bytes, exceeding the %d byte limit",
			rec.Name, rec.Size, profile.MaxFileSize)
	}

	return nil
}

// RequiredMetadataValidator rejects files missing metadata fields the profile requires
type RequiredMetadataValidator struct{}

func (v *RequiredMetadataValidator) Name() string   { return "requiredMetadata" }
func (v *RequiredMetadataValidator) Advisory() bool { return false }

func (v *RequiredMetadataValidator) Validate(ctx context.Context, rec *models.FileRecord, profile *Profile) error {
	for _, field := range profile.RequiredMetadata {
		if _, ok := rec.Metadata[field]; !ok {
			return fmt.Errorf("file %s is missing required metadata field %q", rec.Name, field)
		}
	}
	return nil
}

// ImageDimensionValidator warns about images larger than the configured bounds.
// Advisory: an oversized image is accepted and recompressed later in the pipeline.
type ImageDimensionValidator struct {
	MaxWidth  int
	MaxHeight int
}

func (v *ImageDimensionValidator) Name() string   { return "imageDimensions" }
func (v *ImageDimensionValidator) Advisory() bool { return true }

func (v *ImageDimensionValidator) Validate(ctx context.Context, rec *models.FileRecord, profile *Profile) error {
	if !strings.HasPrefix(rec.ContentType, "image/") {
		return nil
	}
	if v.MaxWidth <= 0 && v.MaxHeight <= 0 {
		return nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Payload))
	if err != nil {
		// Undecodable images are a processor concern, not a validation failure
		return nil
	}

	if (v.MaxWidth > 0 && cfg.Width > v.MaxWidth) || (v.MaxHeight > 0 && cfg.Height > v.MaxHeight) {
		return fmt.Errorf("image %s is %dx%d, larger than %dx%d and will be recompressed",
			rec.Name, cfg.Width, cfg.Height, v.MaxWidth, v.MaxHeight)
	}

	return nil
}
