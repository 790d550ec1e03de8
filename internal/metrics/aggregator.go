// Package metrics derives aggregate progress statistics from file records
package metrics

import (
	"time"

	"github.com/example/uploadkit/internal/models"
)

// Stats is a point-in-time view of batch transfer progress
type Stats struct {
	// Percent is overall completion across all files, 0-100
	Percent float64

	// SpeedBytesPerSec is the mean instantaneous speed of uploading files
	SpeedBytesPerSec float64

	// ETA is a best-effort estimate from current speed and remaining bytes;
	// only meaningful when HasETA is true
	ETA    time.Duration
	HasETA bool
}

// Aggregator computes batch statistics. The clock is injectable for tests.
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates an aggregator using the wall clock
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// NewAggregatorWithClock creates an aggregator with a custom clock
func NewAggregatorWithClock(now func() time.Time) *Aggregator {
	return &Aggregator{now: now}
}

// Snapshot derives current statistics from the given records. Completed
// files count as their full size; uploading files by their partial bytes.
func (a *Aggregator) Snapshot(files []*models.FileRecord) Stats {
	var stats Stats
	var totalBytes, uploadedBytes, remainingBytes int64
	var speedSum float64
	uploadingCount := 0

	now := a.now()

	for _, rec := range files {
		totalBytes += rec.Size

		switch rec.Status {
		case models.StatusCompleted:
			uploadedBytes += rec.Size
		case models.StatusUploading:
			uploadedBytes += rec.UploadedBytes
			remainingBytes += rec.Size - rec.UploadedBytes

			elapsed := now.Sub(rec.StartedAt).Seconds()
			if elapsed > 0 && rec.UploadedBytes > 0 {
				speedSum += float64(rec.UploadedBytes) / elapsed
				uploadingCount++
			}
		default:
			remainingBytes += rec.Size
		}
	}

	if totalBytes > 0 {
		stats.Percent = float64(uploadedBytes) / float64(totalBytes) * 100
	}

	if uploadingCount > 0 {
		stats.SpeedBytesPerSec = speedSum / float64(uploadingCount)
	}

	if stats.SpeedBytesPerSec > 0 && remainingBytes > 0 {
		seconds := float64(remainingBytes) / stats.SpeedBytesPerSec
		stats.ETA = time.Duration(seconds * float64(time.Second))
		stats.HasETA = true
	}

	return stats
}
