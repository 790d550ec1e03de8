// Package uploader orchestrates validation, processing, and upload of files
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/uploadkit/internal/metrics"
	"github.com/example/uploadkit/internal/models"
	"github.com/example/uploadkit/internal/processors"
	"github.com/example/uploadkit/internal/transfer"
	"github.com/example/uploadkit/internal/validation"
)

// Common errors
var (
	ErrFileNotFound  = errors.New("file not found")
	ErrFileUploading = errors.New("file is uploading and cannot be removed")
	ErrNotUploadable = errors.New("file is not in an uploadable state")
)

// DefaultConcurrency bounds simultaneous uploads during UploadAll
const DefaultConcurrency = 3

// SimpleTransport is the whole-file upload path of the endpoint client
type SimpleTransport interface {
	SimpleUpload(ctx context.Context, rec *models.FileRecord, uploadCtx, projectID string) (*models.ServerFile, error)
}

// ChunkEngine is the chunked upload path
type ChunkEngine interface {
	Upload(ctx context.Context, rec *models.FileRecord, onProgress transfer.ProgressFunc) (*models.ServerFile, error)
	ChunkSize() int64
}

// Callbacks is the event surface exposed to embedding code.
// Nil fields are simply not invoked.
type Callbacks struct {
	FileAdded          func(rec *models.FileRecord)
	UploadStart        func(rec *models.FileRecord)
	UploadProgress     func(rec *models.FileRecord, percent float64)
	UploadComplete     func(rec *models.FileRecord, result *models.ServerFile)
	UploadError        func(rec *models.FileRecord, err error)
	AllUploadsComplete func(files []*models.FileRecord)
	ValidationError    func(fileName string, messages []string)
}

// Options configures the orchestrator
type Options struct {
	// RetryAttempts is the number of retries after the first failed attempt.
	// A file whose every attempt fails becomes terminal after RetryAttempts+1 attempts.
	RetryAttempts int

	// RetryDelay is the wait before each retry
	RetryDelay time.Duration

	// ExponentialBackoff doubles the delay on each successive retry
	ExponentialBackoff bool

	// Concurrency bounds simultaneous uploads in UploadAll; DefaultConcurrency when zero
	Concurrency int

	// Context and ProjectID are passed through to the simple upload path
	Context   string
	ProjectID string
}

// BatchResult is the settled outcome of one file in an UploadAll run
type BatchResult struct {
	FileID string
	Err    error
}

// Manager owns the file collection and drives uploads through their
// pending -> uploading -> completed/error lifecycle.
type Manager struct {
	mu    sync.Mutex
	files map[string]*models.FileRecord
	order []string

	client     SimpleTransport
	engine     ChunkEngine
	validators *validation.Chain
	procs      *processors.Chain
	agg        *metrics.Aggregator

	opts Options
	cb   Callbacks

	sleep func(time.Duration)
}

// NewManager creates an upload manager. The validator and processor chains
// may be nil, in which case files are accepted and uploaded as-is.
func NewManager(client SimpleTransport, engine ChunkEngine, validators *validation.Chain, procs *processors.Chain, opts Options, cb Callbacks) *Manager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	return &Manager{
		files:      make(map[string]*models.FileRecord),
		client:     client,
		engine:     engine,
		validators: validators,
		procs:      procs,
		agg:        metrics.NewAggregator(),
		opts:       opts,
		cb:         cb,
		sleep:      time.Sleep,
	}
}

// Add validates and processes a candidate file, then registers it as pending.
// A blocking validation failure is reported through the ValidationError
// callback and returned; the file never enters the collection.
func (m *Manager) Add(ctx context.Context, name string, payload []byte, documentType string, metadata map[string]string) (*models.FileRecord, error) {
	if metadata == nil {
		metadata = make(map[string]string)
	}

	rec := &models.FileRecord{
		ID:           uuid.New().String(),
		Name:         name,
		Size:         int64(len(payload)),
		ContentType:  processors.GetContentTypeByExt(name),
		DocumentType: documentType,
		Status:       models.StatusPending,
		Metadata:     metadata,
		AddedAt:      time.Now(),
		Payload:      payload,
	}

	if m.validators != nil {
		if err := m.validators.Run(ctx, rec); err != nil {
			if m.cb.ValidationError != nil {
				m.cb.ValidationError(name, []string{err.Error()})
			}
			return nil, err
		}
	}

	if m.procs != nil {
		m.procs.Run(ctx, rec)
	}

	m.mu.Lock()
	m.files[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	m.mu.Unlock()

	if m.cb.FileAdded != nil {
		m.cb.FileAdded(rec)
	}

	return rec, nil
}

// Remove removes a file from the collection. Removal of an uploading file
// is rejected and the file stays in the collection.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.files[id]
	if !ok {
		return ErrFileNotFound
	}
	if rec.Status == models.StatusUploading {
		return ErrFileUploading
	}

	delete(m.files, id)
	for i, fid := range m.order {
		if fid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the record for the given file ID
func (m *Manager) Get(id string) (*models.FileRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.files[id]
	return rec, ok
}

// Files returns the managed records in insertion order
func (m *Manager) Files() []*models.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filesLocked()
}

func (m *Manager) filesLocked() []*models.FileRecord {
	files := make([]*models.FileRecord, 0, len(m.order))
	for _, id := range m.order {
		if rec, ok := m.files[id]; ok {
			files = append(files, rec)
		}
	}
	return files
}

// Batch returns the aggregate state over all managed files
func (m *Manager) Batch() models.BatchState {
	m.mu.Lock()
	defer m.mu.Unlock()

	var state models.BatchState
	for _, id := range m.order {
		rec, ok := m.files[id]
		if !ok {
			continue
		}

		state.TotalFiles++
		state.TotalBytes += rec.Size

		switch rec.Status {
		case models.StatusCompleted:
			state.Completed++
			state.UploadedBytes += rec.Size
		case models.StatusError:
			state.Failed++
		case models.StatusUploading:
			state.IsUploading = true
			state.UploadedBytes += rec.UploadedBytes
		}
	}
	return state
}

// Stats returns derived progress statistics for the managed files
func (m *Manager) Stats() metrics.Stats {
	return m.agg.Snapshot(m.Files())
}

// Upload uploads one file, retrying per the configured policy. Files at or
// under the chunk size go through the simple path in a single request;
// larger files go through the chunk engine.
func (m *Manager) Upload(ctx context.Context, id string) error {
	m.mu.Lock()
	rec, ok := m.files[id]
	if !ok {
		m.mu.Unlock()
		return ErrFileNotFound
	}
	if rec.Status != models.StatusPending && rec.Status != models.StatusError {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotUploadable, rec.Name, rec.Status)
	}
	rec.Status = models.StatusUploading
	rec.StartedAt = time.Now()
	rec.Attempts = 0
	m.mu.Unlock()

	if m.cb.UploadStart != nil {
		m.cb.UploadStart(rec)
	}

	maxAttempts := m.opts.RetryAttempts + 1
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			m.sleep(m.retryDelay(attempt))

			// The file may have been torn down while we waited
			if _, ok := m.Get(id); !ok {
				return ErrFileNotFound
			}
		}

		m.mu.Lock()
		rec.Attempts++
		m.mu.Unlock()

		result, err := m.uploadOnce(ctx, rec)
		if err == nil {
			m.mu.Lock()
			rec.Status = models.StatusCompleted
			rec.Progress = 100
			rec.UploadedBytes = rec.Size
			m.mu.Unlock()

			if m.cb.UploadComplete != nil {
				m.cb.UploadComplete(rec, result)
			}
			return nil
		}

		lastErr = err
		log.Printf("Upload attempt %d/%d failed for %s: %v", attempt+1, maxAttempts, rec.Name, err)
	}

	m.mu.Lock()
	rec.Status = models.StatusError
	m.mu.Unlock()

	if m.cb.UploadError != nil {
		m.cb.UploadError(rec, lastErr)
	}
	return lastErr
}

// UploadAll uploads every pending file, partitioned into groups of the
// configured concurrency. Files within a group run concurrently; a group
// starts only after every upload in the previous group has settled. One
// file's failure never cancels its siblings.
func (m *Manager) UploadAll(ctx context.Context) []BatchResult {
	m.mu.Lock()
	var pending []string
	for _, id := range m.order {
		if rec, ok := m.files[id]; ok && rec.Status == models.StatusPending {
			pending = append(pending, id)
		}
	}
	m.mu.Unlock()

	var results []BatchResult
	for start := 0; start < len(pending); start += m.opts.Concurrency {
		end := start + m.opts.Concurrency
		if end > len(pending) {
			end = len(pending)
		}
		group := pending[start:end]

		groupResults := make([]BatchResult, len(group))
		var wg sync.WaitGroup
		for i, id := range group {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				groupResults[i] = BatchResult{FileID: id, Err: m.Upload(ctx, id)}
			}(i, id)
		}
		wg.Wait()

		results = append(results, groupResults...)
	}

	if m.cb.AllUploadsComplete != nil {
		m.cb.AllUploadsComplete(m.Files())
	}
	return results
}

// uploadOnce performs a single upload attempt over the appropriate path
func (m *Manager) uploadOnce(ctx context.Context, rec *models.FileRecord) (*models.ServerFile, error) {
	if rec.Size <= m.engine.ChunkSize() {
		return m.client.SimpleUpload(ctx, rec, m.opts.Context, m.opts.ProjectID)
	}
	return m.uploadChunked(ctx, rec)
}

// uploadChunked runs the chunk engine against a working copy of the record
// and syncs observable fields back under the lock, so progress updates that
// fire after a teardown cannot touch a removed record.
func (m *Manager) uploadChunked(ctx context.Context, rec *models.FileRecord) (*models.ServerFile, error) {
	work := *rec

	result, err := m.engine.Upload(ctx, &work, func(percent float64) {
		m.mu.Lock()
		live, ok := m.files[rec.ID]
		if ok {
			live.UploadID = work.UploadID
			live.UploadedBytes = work.UploadedBytes
			live.ChunkIndex = work.ChunkIndex
			live.Progress = percent
		}
		m.mu.Unlock()

		if ok && m.cb.UploadProgress != nil {
			m.cb.UploadProgress(live, percent)
		}
	})

	// Keep the upload ID on failure so a retry resumes the same session
	m.mu.Lock()
	if live, ok := m.files[rec.ID]; ok {
		live.UploadID = work.UploadID
		live.UploadedBytes = work.UploadedBytes
		live.ChunkIndex = work.ChunkIndex
	}
	m.mu.Unlock()

	return result, err
}

// retryDelay returns the wait before the given retry attempt (1-based)
func (m *Manager) retryDelay(attempt int) time.Duration {
	delay := m.opts.RetryDelay
	if m.opts.ExponentialBackoff {
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
	}
	return delay
}
