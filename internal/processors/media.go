package processors

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/uploadkit/internal/models"
)

// MediaProcessor extracts duration and stream metadata from audio and video
// files using ffprobe. When ffprobe is not installed the processor is a no-op.
type MediaProcessor struct{}

// NewMediaProcessor creates a new audio/video metadata processor
func NewMediaProcessor() *MediaProcessor {
	return &MediaProcessor{}
}

// Process processes an audio or video file
func (p *MediaProcessor) Process(ctx context.Context, rec *models.FileRecord, opts Options) error {
	if !opts.ExtractMetadata {
		return nil
	}

	if _, err := exec.LookPath("ffprobe"); err != nil {
		// Metadata extraction is best-effort; without ffprobe the file
		// uploads without duration information
		return nil
	}

	// ffprobe reads from files, so stage the payload in a temp file
	tempFile, err := os.CreateTemp("", "media-*"+filepath.Ext(rec.Name))
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err = tempFile.Write(rec.Payload); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write to temporary file: %w", err)
	}
	tempFile.Close()

	durationCmd := exec.CommandContext(ctx, "ffprobe", "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", tempFile.Name())
	durationOutput, err := durationCmd.Output()
	if err != nil {
		return fmt.Errorf("ffprobe failed: %w", err)
	}

	durationStr := strings.TrimSpace(string(durationOutput))
	if duration, err := strconv.ParseFloat(durationStr, 64); err == nil {
		rec.Metadata["duration"] = fmt.Sprintf("%.2f", duration)
	}

	if strings.HasPrefix(rec.ContentType, "video/") {
		dimCmd := exec.CommandContext(ctx, "ffprobe", "-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=width,height",
			"-of", "csv=s=x:p=0", tempFile.Name())
		if dimOutput, err := dimCmd.Output(); err == nil {
			dims := strings.TrimSpace(string(dimOutput))
			if parts := strings.Split(dims, "x"); len(parts) == 2 {
				rec.Metadata["width"] = parts[0]
				rec.Metadata["height"] = parts[1]
			}
		}
	}

	return nil
}

// CanProcess returns true if this processor can process the given content type
func (p *MediaProcessor) CanProcess(contentType, ext string) bool {
	if strings.HasPrefix(contentType, "audio/") || strings.HasPrefix(contentType, "video/") {
		return true
	}

	mediaExts := []string{".mp3", ".wav", ".ogg", ".flac", ".mp4", ".mov", ".avi", ".mkv", ".webm"}
	for _, mediaExt := range mediaExts {
		if ext == mediaExt {
			return true
		}
	}

	return false
}

// Name identifies the processor in logs
func (p *MediaProcessor) Name() string {
	return "media"
}
