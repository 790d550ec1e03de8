// Package transfer implements the chunked upload engine
package transfer

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/example/uploadkit/internal/api"
	"github.com/example/uploadkit/internal/models"
	"github.com/example/uploadkit/internal/resume"
)

// Transport is the subset of the endpoint client the engine depends on
type Transport interface {
	UploadChunk(ctx context.Context, uploadID string, index, totalChunks int, fileName string, totalBytes int64, chunk []byte) error
	Finalize(ctx context.Context, finalize api.FinalizeRequest) (*models.ServerFile, error)
	ResumeStatus(ctx context.Context, uploadID string) (*models.ResumeStatus, bool, error)
}

// Config configures the chunk transfer engine
type Config struct {
	// ChunkSize is the fixed byte size of every chunk but the last
	ChunkSize int64

	// Resumable enables resume-state persistence and the resume query on start
	Resumable bool

	// Context and ProjectID are passed through to finalize
	Context   string
	ProjectID string
}

// ProgressFunc receives the file's progress percentage after each acknowledged chunk
type ProgressFunc func(percent float64)

// ChunkError reports which chunk of an upload failed
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// FinalizeError reports a failed finalize call. Resume state is retained so
// a later retry can continue from the last acknowledged chunk.
type FinalizeError struct {
	Err error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize failed: %v", e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}

// Engine splits a file into fixed-size chunks and uploads them strictly in
// index order, persisting resume state after every acknowledged chunk.
type Engine struct {
	transport Transport
	store     resume.Store
	cfg       Config
}

// NewEngine creates a chunk transfer engine
func NewEngine(transport Transport, store resume.Store, cfg Config) *Engine {
	return &Engine{
		transport: transport,
		store:     store,
		cfg:       cfg,
	}
}

// Upload transmits the record's payload chunk by chunk and finalizes the
// assembled object. Chunk i+1 is never sent before chunk i is acknowledged.
// A resumed upload never re-sends server-acknowledged bytes and never skips
// unacknowledged ones. Cancelling ctx aborts the attempt but keeps resume
// state, so a later attempt continues where this one stopped.
func (e *Engine) Upload(ctx context.Context, rec *models.FileRecord, onProgress ProgressFunc) (*models.ServerFile, error) {
	if e.cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", e.cfg.ChunkSize)
	}
	if int64(len(rec.Payload)) != rec.Size {
		return nil, fmt.Errorf("payload length %d does not match record size %d", len(rec.Payload), rec.Size)
	}

	totalChunks := int((rec.Size + e.cfg.ChunkSize - 1) / e.cfg.ChunkSize)
	if totalChunks == 0 {
		totalChunks = 1
	}

	if rec.UploadID == "" {
		rec.UploadID = uuid.New().String()
	}

	start, uploadedBytes := 0, int64(0)
	if e.cfg.Resumable {
		start, uploadedBytes = e.resumePoint(ctx, rec, totalChunks)
	}

	rec.ChunkIndex = start
	rec.UploadedBytes = uploadedBytes
	if start > 0 {
		rec.Progress = float64(start) / float64(totalChunks) * 100
		// Observers should see the jump immediately, not at the next ack
		if onProgress != nil {
			onProgress(rec.Progress)
		}
	}

	for i := start; i < totalChunks; i++ {
		lo := int64(i) * e.cfg.ChunkSize
		hi := lo + e.cfg.ChunkSize
		if hi > rec.Size {
			hi = rec.Size
		}

		if err := e.transport.UploadChunk(ctx, rec.UploadID, i, totalChunks, rec.Name, rec.Size, rec.Payload[lo:hi]); err != nil {
			return nil, &ChunkError{Index: i, Err: err}
		}

		rec.UploadedBytes += hi - lo
		rec.ChunkIndex = i + 1
		rec.Progress = float64(i+1) / float64(totalChunks) * 100

		if e.cfg.Resumable {
			session := &models.UploadSession{
				UploadID:      rec.UploadID,
				NextChunk:     rec.ChunkIndex,
				UploadedBytes: rec.UploadedBytes,
				TotalBytes:    rec.Size,
			}
			// The server remains authoritative; a failed local save only
			// costs an extra resume query on the next attempt
			if err := e.store.Save(session); err != nil {
				log.Printf("Failed to persist resume state for %s: %v", rec.UploadID, err)
			}
		}

		if onProgress != nil {
			onProgress(rec.Progress)
		}
	}

	file, err := e.transport.Finalize(ctx, api.FinalizeRequest{
		UploadID:     rec.UploadID,
		FileName:     rec.Name,
		Metadata:     rec.Metadata,
		DocumentType: rec.DocumentType,
		Context:      e.cfg.Context,
		ProjectID:    e.cfg.ProjectID,
	})
	if err != nil {
		return nil, &FinalizeError{Err: err}
	}

	if e.cfg.Resumable {
		if err := e.store.Delete(rec.UploadID); err != nil {
			log.Printf("Failed to clear resume state for %s: %v", rec.UploadID, err)
		}
	}

	return file, nil
}

// Cancel discards the resume state for an upload. Unlike a context
// cancellation, this forfeits the partial progress on the next attempt.
func (e *Engine) Cancel(uploadID string) error {
	return e.store.Delete(uploadID)
}

// ChunkSize returns the engine's fixed chunk size
func (e *Engine) ChunkSize() int64 {
	return e.cfg.ChunkSize
}

// resumePoint determines the first chunk to send. The server-confirmed
// offset is authoritative; the local session is a fallback when the server
// cannot be queried, and is discarded when the server reports no partial
// upload or a different total size.
func (e *Engine) resumePoint(ctx context.Context, rec *models.FileRecord, totalChunks int) (int, int64) {
	local, hasLocal, err := e.store.Load(rec.UploadID)
	if err != nil {
		log.Printf("Failed to load resume state for %s: %v", rec.UploadID, err)
		hasLocal = false
	}

	status, ok, err := e.transport.ResumeStatus(ctx, rec.UploadID)
	if err != nil {
		if hasLocal && sessionUsable(local, rec.Size, totalChunks) {
			log.Printf("Resume query for %s failed, using local state (next chunk %d): %v",
				rec.UploadID, local.NextChunk, err)
			return local.NextChunk, local.UploadedBytes
		}
		return 0, 0
	}

	if !ok || status.TotalBytes != rec.Size ||
		status.NextChunk < 0 || status.NextChunk > totalChunks || status.UploadedBytes < 0 {
		if hasLocal {
			e.store.Delete(rec.UploadID)
		}
		return 0, 0
	}

	return status.NextChunk, status.UploadedBytes
}

// sessionUsable rejects local resume state that does not describe this file
// or that would place the chunk cursor outside the payload
func sessionUsable(session *models.UploadSession, size int64, totalChunks int) bool {
	return session.TotalBytes == size &&
		session.NextChunk >= 0 && session.NextChunk <= totalChunks &&
		session.UploadedBytes >= 0
}
