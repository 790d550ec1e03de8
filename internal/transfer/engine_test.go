package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/uploadkit/internal/api"
	"github.com/example/uploadkit/internal/models"
	"github.com/example/uploadkit/internal/resume"
)

// fakeTransport records chunk traffic and simulates the server's staging state
type fakeTransport struct {
	chunks    [][]byte
	indexes   []int
	finalized bool

	// failChunk makes the given chunk index fail; -1 disables
	failChunk   int
	failErr     error
	finalizeErr error

	// resume query behavior
	status    *models.ResumeStatus
	hasStatus bool
	statusErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failChunk: -1}
}

func (f *fakeTransport) UploadChunk(ctx context.Context, uploadID string, index, totalChunks int, fileName string, totalBytes int64, chunk []byte) error {
	if index == f.failChunk {
		return f.failErr
	}
	f.indexes = append(f.indexes, index)
	f.chunks = append(f.chunks, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeTransport) Finalize(ctx context.Context, finalize api.FinalizeRequest) (*models.ServerFile, error) {
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	f.finalized = true
	return &models.ServerFile{ID: "stored", Name: finalize.FileName}, nil
}

func (f *fakeTransport) ResumeStatus(ctx context.Context, uploadID string) (*models.ResumeStatus, bool, error) {
	if f.statusErr != nil {
		return nil, false, f.statusErr
	}
	return f.status, f.hasStatus, nil
}

func payload(size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

func record(size int) *models.FileRecord {
	return &models.FileRecord{
		ID:      "f-1",
		Name:    "big.bin",
		Size:    int64(size),
		Status:  models.StatusUploading,
		Payload: payload(size),
	}
}

func TestUploadSendsChunksStrictlyInOrder(t *testing.T) {
	transport := newFakeTransport()
	engine := NewEngine(transport, resume.NewMemoryStore(), Config{ChunkSize: 10, Resumable: true})

	rec := record(100)
	file, err := engine.Upload(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, "stored", file.ID)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, transport.indexes)
	assert.True(t, transport.finalized)

	reassembled := bytes.Join(transport.chunks, nil)
	assert.Equal(t, rec.Payload, reassembled)
}

func TestUploadShortFinalChunk(t *testing.T) {
	transport := newFakeTransport()
	engine := NewEngine(transport, resume.NewMemoryStore(), Config{ChunkSize: 10})

	_, err := engine.Upload(context.Background(), record(25), nil)
	require.NoError(t, err)

	require.Len(t, transport.chunks, 3)
	assert.Len(t, transport.chunks[0], 10)
	assert.Len(t, transport.chunks[1], 10)
	assert.Len(t, transport.chunks[2], 5)
}

func TestUploadProgressIsMonotonicAndEndsAtFull(t *testing.T) {
	transport := newFakeTransport()
	engine := NewEngine(transport, resume.NewMemoryStore(), Config{ChunkSize: 10})

	var seen []float64
	_, err := engine.Upload(context.Background(), record(40), func(percent float64) {
		seen = append(seen, percent)
	})
	require.NoError(t, err)

	require.Len(t, seen, 4)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100.0, seen[len(seen)-1])
}

func TestResumeSkipsAcknowledgedChunks(t *testing.T) {
	transport := newFakeTransport()
	transport.hasStatus = true
	transport.status = &models.ResumeStatus{NextChunk: 4, UploadedBytes: 40, TotalBytes: 100}

	engine := NewEngine(transport, resume.NewMemoryStore(), Config{ChunkSize: 10, Resumable: true})

	rec := record(100)
	rec.UploadID = "u-resume"
	_, err := engine.Upload(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 5, 6, 7, 8, 9}, transport.indexes,
		"acknowledged chunks must not be re-sent; unacknowledged ones must not be skipped")
	assert.Equal(t, payload(100)[40:50], transport.chunks[0])
	assert.Equal(t, int64(100), rec.UploadedBytes)
}

func TestChunkFailureReportsIndexAndKeepsSession(t *testing.T) {
	transport := newFakeTransport()
	transport.failChunk = 3
	transport.failErr = errors.New("connection reset")

	store := resume.NewMemoryStore()
	engine := NewEngine(transport, store, Config{ChunkSize: 10, Resumable: true})

	rec := record(100)
	_, err := engine.Upload(context.Background(), rec, nil)
	require.Error(t, err)

	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 3, chunkErr.Index)
	assert.ErrorIs(t, err, transport.failErr)

	// Chunks before the failure went through; state points at the failed chunk
	assert.Equal(t, []int{0, 1, 2}, transport.indexes)
	session, ok, loadErr := store.Load(rec.UploadID)
	require.NoError(t, loadErr)
	require.True(t, ok)
	assert.Equal(t, 3, session.NextChunk)
	assert.Equal(t, int64(30), session.UploadedBytes)
}

func TestFinalizeFailureRetainsSession(t *testing.T) {
	transport := newFakeTransport()
	transport.finalizeErr = errors.New("assembly failed")

	store := resume.NewMemoryStore()
	engine := NewEngine(transport, store, Config{ChunkSize: 10, Resumable: true})

	rec := record(30)
	_, err := engine.Upload(context.Background(), rec, nil)
	require.Error(t, err)

	var finErr *FinalizeError
	require.ErrorAs(t, err, &finErr)

	_, ok, loadErr := store.Load(rec.UploadID)
	require.NoError(t, loadErr)
	assert.True(t, ok, "finalize failure must keep resume state for a later retry")
}

func TestSuccessfulUploadClearsSession(t *testing.T) {
	store := resume.NewMemoryStore()
	engine := NewEngine(newFakeTransport(), store, Config{ChunkSize: 10, Resumable: true})

	rec := record(30)
	_, err := engine.Upload(context.Background(), rec, nil)
	require.NoError(t, err)

	_, ok, loadErr := store.Load(rec.UploadID)
	require.NoError(t, loadErr)
	assert.False(t, ok)
}

func TestResumeFallsBackToLocalStateWhenServerUnreachable(t *testing.T) {
	transport := newFakeTransport()
	transport.statusErr = errors.New("resume endpoint down")

	store := resume.NewMemoryStore()
	require.NoError(t, store.Save(&models.UploadSession{
		UploadID:      "u-local",
		NextChunk:     2,
		UploadedBytes: 20,
		TotalBytes:    50,
	}))

	engine := NewEngine(transport, store, Config{ChunkSize: 10, Resumable: true})

	rec := record(50)
	rec.UploadID = "u-local"
	_, err := engine.Upload(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3, 4}, transport.indexes)
}

func TestStaleLocalStateDiscardedWhenServerHasNoPartial(t *testing.T) {
	transport := newFakeTransport()

	store := resume.NewMemoryStore()
	require.NoError(t, store.Save(&models.UploadSession{
		UploadID:      "u-stale",
		NextChunk:     5,
		UploadedBytes: 50,
		TotalBytes:    100,
	}))

	engine := NewEngine(transport, store, Config{ChunkSize: 10, Resumable: true})

	rec := record(100)
	rec.UploadID = "u-stale"
	_, err := engine.Upload(context.Background(), rec, nil)
	require.NoError(t, err)

	// The server is authoritative: everything is sent from the beginning
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, transport.indexes)
}

func TestResumeIgnoredWhenServerSizeMismatches(t *testing.T) {
	transport := newFakeTransport()
	transport.hasStatus = true
	transport.status = &models.ResumeStatus{NextChunk: 4, UploadedBytes: 40, TotalBytes: 999}

	engine := NewEngine(transport, resume.NewMemoryStore(), Config{ChunkSize: 10, Resumable: true})

	rec := record(100)
	rec.UploadID = "u-mismatch"
	_, err := engine.Upload(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, transport.indexes[0])
	assert.Len(t, transport.indexes, 10)
}

func TestResumeIgnoredWhenServerOffsetsAreNegative(t *testing.T) {
	for name, status := range map[string]*models.ResumeStatus{
		"negative next chunk": {NextChunk: -1, UploadedBytes: 40, TotalBytes: 100},
		"negative bytes":      {NextChunk: 4, UploadedBytes: -40, TotalBytes: 100},
	} {
		t.Run(name, func(t *testing.T) {
			transport := newFakeTransport()
			transport.hasStatus = true
			transport.status = status

			engine := NewEngine(transport, resume.NewMemoryStore(), Config{ChunkSize: 10, Resumable: true})

			rec := record(100)
			rec.UploadID = "u-negative"
			_, err := engine.Upload(context.Background(), rec, nil)
			require.NoError(t, err)

			assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, transport.indexes,
				"a malformed resume response restarts the upload from the beginning")
		})
	}
}

func TestCorruptLocalStateIgnoredWhenServerUnreachable(t *testing.T) {
	transport := newFakeTransport()
	transport.statusErr = errors.New("resume endpoint down")

	store := resume.NewMemoryStore()
	require.NoError(t, store.Save(&models.UploadSession{
		UploadID:      "u-corrupt",
		NextChunk:     -3,
		UploadedBytes: -30,
		TotalBytes:    50,
	}))

	engine := NewEngine(transport, store, Config{ChunkSize: 10, Resumable: true})

	rec := record(50)
	rec.UploadID = "u-corrupt"
	_, err := engine.Upload(context.Background(), rec, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4}, transport.indexes)
}

func TestResumeJumpFiresProgressCallbackImmediately(t *testing.T) {
	transport := newFakeTransport()
	transport.hasStatus = true
	transport.status = &models.ResumeStatus{NextChunk: 4, UploadedBytes: 40, TotalBytes: 100}

	engine := NewEngine(transport, resume.NewMemoryStore(), Config{ChunkSize: 10, Resumable: true})

	var seen []float64
	rec := record(100)
	rec.UploadID = "u-jump"
	_, err := engine.Upload(context.Background(), rec, func(percent float64) {
		seen = append(seen, percent)
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	assert.Equal(t, 40.0, seen[0], "the first progress report reflects the resume point, not the next ack")
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100.0, seen[len(seen)-1])
}

func TestCancelDiscardsResumeState(t *testing.T) {
	store := resume.NewMemoryStore()
	require.NoError(t, store.Save(&models.UploadSession{UploadID: "u-cancel", NextChunk: 3, TotalBytes: 50}))

	engine := NewEngine(newFakeTransport(), store, Config{ChunkSize: 10, Resumable: true})
	require.NoError(t, engine.Cancel("u-cancel"))

	_, ok, err := store.Load("u-cancel")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadAssignsUploadID(t *testing.T) {
	engine := NewEngine(newFakeTransport(), resume.NewMemoryStore(), Config{ChunkSize: 10})

	rec := record(20)
	require.Empty(t, rec.UploadID)
	_, err := engine.Upload(context.Background(), rec, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.UploadID)
}

func TestUploadRejectsPayloadSizeMismatch(t *testing.T) {
	engine := NewEngine(newFakeTransport(), resume.NewMemoryStore(), Config{ChunkSize: 10})

	rec := record(20)
	rec.Size = 30
	_, err := engine.Upload(context.Background(), rec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%d", 30))
}
