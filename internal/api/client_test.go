package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/uploadkit/internal/models"
)

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		UploadURL:        serverURL + "/api/upload",
		ChunkedUploadURL: serverURL + "/api/upload/chunked",
		ResumeURL:        serverURL + "/api/upload/resume",
		AuthToken:        "secret",
	})
}

func respond(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func TestSimpleUploadSendsMultipartFields(t *testing.T) {
	var gotToken, gotMetadata, gotDocType, gotContext, gotProject string
	var gotContent []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(TokenHeader)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotContent, _ = io.ReadAll(file)
		file.Close()

		gotMetadata = r.FormValue("metadata")
		gotDocType = r.FormValue("documentType")
		gotContext = r.FormValue("context")
		gotProject = r.FormValue("projectId")

		respond(w, http.StatusOK, models.APIResponse{
			Success: true,
			Data:    models.ServerFile{ID: "srv-1", Name: "doc.txt", Size: 5},
		})
	}))
	defer server.Close()

	rec := &models.FileRecord{
		Name:         "doc.txt",
		Size:         5,
		DocumentType: "note",
		Metadata:     map[string]string{"author": "sam"},
		Payload:      []byte("hello"),
	}

	file, err := newTestClient(server.URL).SimpleUpload(context.Background(), rec, "profile", "p-9")
	require.NoError(t, err)

	assert.Equal(t, "srv-1", file.ID)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, []byte("hello"), gotContent)
	assert.JSONEq(t, `{"author":"sam"}`, gotMetadata)
	assert.Equal(t, "note", gotDocType)
	assert.Equal(t, "profile", gotContext)
	assert.Equal(t, "p-9", gotProject)
}

func TestUploadChunkSendsChunkFields(t *testing.T) {
	var form map[string]string
	var gotChunk []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		chunk, _, err := r.FormFile("chunk")
		require.NoError(t, err)
		gotChunk, _ = io.ReadAll(chunk)
		chunk.Close()

		form = map[string]string{
			"uploadId":    r.FormValue("uploadId"),
			"chunkIndex":  r.FormValue("chunkIndex"),
			"totalChunks": r.FormValue("totalChunks"),
			"fileName":    r.FormValue("fileName"),
			"totalBytes":  r.FormValue("totalBytes"),
		}

		respond(w, http.StatusOK, models.APIResponse{Success: true})
	}))
	defer server.Close()

	err := newTestClient(server.URL).UploadChunk(context.Background(), "u-1", 2, 10, "big.bin", 10240, []byte("chunkdata"))
	require.NoError(t, err)

	assert.Equal(t, []byte("chunkdata"), gotChunk)
	assert.Equal(t, "u-1", form["uploadId"])
	assert.Equal(t, "2", form["chunkIndex"])
	assert.Equal(t, "10", form["totalChunks"])
	assert.Equal(t, "big.bin", form["fileName"])
	assert.Equal(t, "10240", form["totalBytes"])
}

func TestFinalizePostsJSON(t *testing.T) {
	var gotPath string
	var gotBody FinalizeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		respond(w, http.StatusOK, models.APIResponse{
			Success: true,
			Data:    models.ServerFile{ID: "srv-2"},
		})
	}))
	defer server.Close()

	file, err := newTestClient(server.URL).Finalize(context.Background(), FinalizeRequest{
		UploadID: "u-1",
		FileName: "big.bin",
		Metadata: map[string]string{"k": "v"},
	})
	require.NoError(t, err)

	assert.Equal(t, "srv-2", file.ID)
	assert.Equal(t, "/api/upload/chunked/finalize", gotPath)
	assert.Equal(t, "u-1", gotBody.UploadID)
	assert.Equal(t, "big.bin", gotBody.FileName)
	assert.Equal(t, "v", gotBody.Metadata["k"])
}

func TestResumeStatusFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload/resume/u-1", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(TokenHeader))

		respond(w, http.StatusOK, models.APIResponse{
			Success: true,
			Data:    models.ResumeStatus{NextChunk: 4, UploadedBytes: 4096, TotalBytes: 10240},
		})
	}))
	defer server.Close()

	status, ok, err := newTestClient(server.URL).ResumeStatus(context.Background(), "u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, status.NextChunk)
	assert.Equal(t, int64(4096), status.UploadedBytes)
	assert.Equal(t, int64(10240), status.TotalBytes)
}

func TestResumeStatusNotFoundIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusNotFound, models.APIResponse{Success: false, Error: "No partial upload found"})
	}))
	defer server.Close()

	status, ok, err := newTestClient(server.URL).ResumeStatus(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, status)
}

func TestErrorEnvelopeSurfacesServerMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusBadRequest, models.APIResponse{Success: false, Error: "No chunk provided"})
	}))
	defer server.Close()

	err := newTestClient(server.URL).UploadChunk(context.Background(), "u", 0, 1, "f", 1, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No chunk provided")
	assert.Contains(t, err.Error(), "400")
}
