package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/uploadkit/internal/models"
	"github.com/example/uploadkit/internal/storage"
)

func newTestHandler(t *testing.T) (*UploadHandler, *storage.LocalStorage) {
	t.Helper()

	provider := storage.NewLocalStorage()
	require.NoError(t, provider.Initialize(map[string]string{"basePath": t.TempDir()}))

	handler, err := NewUploadHandler(t.TempDir(), provider, nil)
	require.NoError(t, err)
	return handler, provider
}

func newTestRouter(handler *UploadHandler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/upload", handler.SimpleUpload).Methods("POST")
	router.HandleFunc("/api/upload/chunked", handler.UploadChunk).Methods("POST")
	router.HandleFunc("/api/upload/chunked/finalize", handler.Finalize).Methods("POST")
	router.HandleFunc("/api/upload/resume/{uploadId}", handler.ResumeStatus).Methods("GET")
	return router
}

func multipartBody(t *testing.T, fileField, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile(fileField, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)

	for k, v := range fields {
		writer.WriteField(k, v)
	}
	require.NoError(t, writer.Close())

	return &body, writer.FormDataContentType()
}

func postChunk(t *testing.T, router *mux.Router, uploadID string, index, total int, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, "chunk", "big.bin", content, map[string]string{
		"uploadId":    uploadID,
		"chunkIndex":  strconv.Itoa(index),
		"totalChunks": strconv.Itoa(total),
		"fileName":    "big.bin",
		"totalBytes":  "30",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked", body)
	req.Header.Set("Content-Type", contentType)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func decodeData(t *testing.T, recorder *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &env))
	require.True(t, env.Success, "expected success, got error: %s", env.Error)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func TestSimpleUploadStoresFile(t *testing.T) {
	handler, provider := newTestHandler(t)
	router := newTestRouter(handler)

	body, contentType := multipartBody(t, "file", "note.txt", []byte("hello"), map[string]string{
		"metadata":     `{"author":"sam"}`,
		"documentType": "note",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var file models.ServerFile
	decodeData(t, recorder, &file)
	assert.Equal(t, "note.txt", file.Name)
	assert.NotEmpty(t, file.ID)

	reader, metadata, err := provider.Retrieve(req.Context(), file.ID)
	require.NoError(t, err)
	defer reader.Close()

	stored, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), stored)
	assert.Equal(t, "sam", metadata["author"])
	assert.Equal(t, "note", metadata["documentType"])
}

func TestChunkedUploadLifecycle(t *testing.T) {
	handler, provider := newTestHandler(t)
	router := newTestRouter(handler)

	content := []byte("abcdefghijklmnopqrstuvwxyz0123")
	for i := 0; i < 3; i++ {
		recorder := postChunk(t, router, "upload-1", i, 3, content[i*10:(i+1)*10])
		require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	}

	// All chunks staged; resume reports the next chunk past the end
	req := httptest.NewRequest(http.MethodGet, "/api/upload/resume/upload-1", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var status models.ResumeStatus
	decodeData(t, recorder, &status)
	assert.Equal(t, 3, status.NextChunk)
	assert.Equal(t, int64(30), status.UploadedBytes)
	assert.Equal(t, int64(30), status.TotalBytes)

	// Finalize assembles the chunks in order
	finalize, _ := json.Marshal(map[string]interface{}{
		"uploadId": "upload-1",
		"fileName": "big.bin",
		"metadata": map[string]string{"origin": "test"},
	})
	req = httptest.NewRequest(http.MethodPost, "/api/upload/chunked/finalize", bytes.NewReader(finalize))
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var file models.ServerFile
	decodeData(t, recorder, &file)
	assert.Equal(t, "big.bin", file.Name)
	assert.Equal(t, int64(30), file.Size)

	reader, metadata, err := provider.Retrieve(req.Context(), file.ID)
	require.NoError(t, err)
	defer reader.Close()

	stored, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, stored)
	assert.Equal(t, "test", metadata["origin"])

	// Finalize cleared the staging state
	req = httptest.NewRequest(http.MethodGet, "/api/upload/resume/upload-1", nil)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestResumeReportsContiguousPrefixOnly(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := newTestRouter(handler)

	// Chunks 0, 1, and 3 staged; 2 is missing
	for _, i := range []int{0, 1, 3} {
		recorder := postChunk(t, router, "gappy", i, 4, bytes.Repeat([]byte("x"), 10))
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/upload/resume/gappy", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var status models.ResumeStatus
	decodeData(t, recorder, &status)
	assert.Equal(t, 2, status.NextChunk, "the chunk after the gap must not count")
	assert.Equal(t, int64(20), status.UploadedBytes)
}

func TestResumeUnknownUploadIs404(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := newTestRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/upload/resume/never-seen", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestFinalizeWithMissingChunkFails(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := newTestRouter(handler)

	for _, i := range []int{0, 2} {
		recorder := postChunk(t, router, "holes", i, 3, bytes.Repeat([]byte("y"), 10))
		require.Equal(t, http.StatusOK, recorder.Code)
	}

	finalize, _ := json.Marshal(map[string]string{"uploadId": "holes", "fileName": "f.bin"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked/finalize", bytes.NewReader(finalize))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Chunk 1 is missing")

	// The staged chunks survive so the client can fill the gap
	req = httptest.NewRequest(http.MethodGet, "/api/upload/resume/holes", nil)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestChunkUploadIsIdempotentPerIndex(t *testing.T) {
	handler, provider := newTestHandler(t)
	router := newTestRouter(handler)

	require.Equal(t, http.StatusOK, postChunk(t, router, "redo", 0, 1, []byte("old-dataXX")).Code)
	require.Equal(t, http.StatusOK, postChunk(t, router, "redo", 0, 1, []byte("new-dataXX")).Code)

	finalize, _ := json.Marshal(map[string]string{"uploadId": "redo", "fileName": "r.bin"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked/finalize", bytes.NewReader(finalize))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var file models.ServerFile
	decodeData(t, recorder, &file)

	reader, _, err := provider.Retrieve(req.Context(), file.ID)
	require.NoError(t, err)
	defer reader.Close()

	stored, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("new-dataXX"), stored, "a re-sent chunk replaces the staged one")
}

func TestChunkRejectsBadInput(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := newTestRouter(handler)

	tests := []struct {
		name     string
		uploadID string
		index    int
		total    int
	}{
		{"path escape", "../../etc", 0, 1},
		{"empty id", "", 0, 1},
		{"negative index", "ok-id", -1, 1},
		{"index past total", "ok-id", 5, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := postChunk(t, router, tt.uploadID, tt.index, tt.total, []byte("z"))
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func TestFinalizeRejectsPathEscapingUploadID(t *testing.T) {
	handler, _ := newTestHandler(t)
	router := newTestRouter(handler)

	finalize, _ := json.Marshal(map[string]string{"uploadId": "../escape", "fileName": "f"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunked/finalize", bytes.NewReader(finalize))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestValidUploadID(t *testing.T) {
	assert.True(t, validUploadID("b3c1f1a0-1234-5678-9abc-def012345678"))
	assert.False(t, validUploadID(""))
	assert.False(t, validUploadID("../up"))
	assert.False(t, validUploadID("a/b"))
	assert.False(t, validUploadID("a\\b"))
	assert.False(t, validUploadID(fmt.Sprintf("%0129d", 0)))
}
