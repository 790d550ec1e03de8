// Package handlers provides HTTP handlers for the upload service
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/uploadkit/internal/models"
	"github.com/example/uploadkit/internal/storage"
)

// maxFormMemory bounds the in-memory portion of multipart parsing
const maxFormMemory = 32 << 20

// sessionMetaFile is the per-upload metadata file inside the staging directory
const sessionMetaFile = "session.json"

// sessionMeta describes a chunked upload in progress on the server
type sessionMeta struct {
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
	TotalBytes  int64  `json:"totalBytes"`
}

// UploadHandler handles simple and chunked upload requests. Chunks are
// staged on disk per upload ID until finalize assembles them into the
// configured storage provider.
type UploadHandler struct {
	stagingDir string
	provider   storage.Provider
	hub        *EventHub

	mu sync.Mutex
}

// NewUploadHandler creates an upload handler. The hub may be nil when no
// event broadcasting is wanted.
func NewUploadHandler(stagingDir string, provider storage.Provider, hub *EventHub) (*UploadHandler, error) {
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	return &UploadHandler{
		stagingDir: stagingDir,
		provider:   provider,
		hub:        hub,
	}, nil
}

// SimpleUpload stores a whole file from one multipart request
func (h *UploadHandler) SimpleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		sendJSONError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		sendJSONError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	metadata := parseMetadataField(r.FormValue("metadata"))
	metadata["fileName"] = header.Filename
	if ct := header.Header.Get("Content-Type"); ct != "" {
		metadata["contentType"] = ct
	}
	if docType := r.FormValue("documentType"); docType != "" {
		metadata["documentType"] = docType
	}
	if uploadCtx := r.FormValue("context"); uploadCtx != "" {
		metadata["context"] = uploadCtx
	}
	if projectID := r.FormValue("projectId"); projectID != "" {
		metadata["projectId"] = projectID
	}

	id, err := h.provider.Store(r.Context(), header.Filename, file, header.Size, metadata)
	if err != nil {
		sendJSONError(w, fmt.Sprintf("Failed to store file: %v", err), http.StatusInternalServerError)
		return
	}

	result := &models.ServerFile{
		ID:          id,
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: metadata["contentType"],
		UploadedAt:  time.Now(),
		StorageType: "default",
		StorageID:   id,
		Metadata:    metadata,
	}

	if h.hub != nil {
		h.hub.Broadcast("upload_completed", "", result)
	}

	sendJSONResponse(w, models.APIResponse{
		Success: true,
		Message: "File uploaded successfully",
		Data:    result,
	}, http.StatusOK)
}

// UploadChunk stages one chunk of a chunked upload
func (h *UploadHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		sendJSONError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	uploadID := r.FormValue("uploadId")
	if !validUploadID(uploadID) {
		sendJSONError(w, "Invalid upload ID", http.StatusBadRequest)
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		sendJSONError(w, "Invalid chunk index", http.StatusBadRequest)
		return
	}

	totalChunks, err := strconv.Atoi(r.FormValue("totalChunks"))
	if err != nil || totalChunks <= 0 || chunkIndex >= totalChunks {
		sendJSONError(w, "Invalid chunk count", http.StatusBadRequest)
		return
	}

	fileName := r.FormValue("fileName")
	totalBytes, _ := strconv.ParseInt(r.FormValue("totalBytes"), 10, 64)

	chunk, _, err := r.FormFile("chunk")
	if err != nil {
		sendJSONError(w, "No chunk provided", http.StatusBadRequest)
		return
	}
	defer chunk.Close()

	h.mu.Lock()
	defer h.mu.Unlock()

	uploadDir := filepath.Join(h.stagingDir, uploadID)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		sendJSONError(w, "Failed to create upload directory", http.StatusInternalServerError)
		return
	}

	metaPath := filepath.Join(uploadDir, sessionMetaFile)
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		meta := sessionMeta{FileName: fileName, TotalChunks: totalChunks, TotalBytes: totalBytes}
		data, _ := json.Marshal(meta)
		if err := os.WriteFile(metaPath, data, 0644); err != nil {
			sendJSONError(w, "Failed to record upload session", http.StatusInternalServerError)
			return
		}
	}

	chunkPath := filepath.Join(uploadDir, fmt.Sprintf("%06d.part", chunkIndex))
	out, err := os.Create(chunkPath)
	if err != nil {
		sendJSONError(w, "Failed to create chunk file", http.StatusInternalServerError)
		return
	}
	written, err := io.Copy(out, chunk)
	out.Close()
	if err != nil {
		os.Remove(chunkPath)
		sendJSONError(w, "Failed to write chunk", http.StatusInternalServerError)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast("chunk_received", uploadID, map[string]interface{}{
			"chunkIndex":  chunkIndex,
			"totalChunks": totalChunks,
			"bytes":       written,
		})
	}

	sendJSONResponse(w, models.APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"uploadId":   uploadID,
			"chunkIndex": chunkIndex,
			"received":   written,
		},
	}, http.StatusOK)
}

// ResumeStatus reports how far a chunked upload has progressed server-side
func (h *UploadHandler) ResumeStatus(w http.ResponseWriter, r *http.Request) {
	uploadID := mux.Vars(r)["uploadId"]
	if !validUploadID(uploadID) {
		sendJSONError(w, "Invalid upload ID", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	uploadDir := filepath.Join(h.stagingDir, uploadID)
	meta, err := readSessionMeta(uploadDir)
	if err != nil {
		sendJSONError(w, "No partial upload found", http.StatusNotFound)
		return
	}

	nextChunk, uploadedBytes := contiguousChunks(uploadDir, meta.TotalChunks)

	sendJSONResponse(w, models.APIResponse{
		Success: true,
		Data: models.ResumeStatus{
			NextChunk:     nextChunk,
			UploadedBytes: uploadedBytes,
			TotalBytes:    meta.TotalBytes,
		},
	}, http.StatusOK)
}

// finalizeRequest is the body of a finalize call
type finalizeRequest struct {
	UploadID     string            `json:"uploadId"`
	FileName     string            `json:"fileName"`
	Metadata     map[string]string `json:"metadata"`
	DocumentType string            `json:"documentType"`
	Context      string            `json:"context"`
	ProjectID    string            `json:"projectId"`
}

// Finalize assembles the staged chunks into one stored object
func (h *UploadHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid finalize request", http.StatusBadRequest)
		return
	}
	if !validUploadID(req.UploadID) {
		sendJSONError(w, "Invalid upload ID", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	uploadDir := filepath.Join(h.stagingDir, req.UploadID)
	meta, err := readSessionMeta(uploadDir)
	if err != nil {
		sendJSONError(w, "No partial upload found", http.StatusNotFound)
		return
	}

	// Every chunk must be present; finalize never fills gaps
	for i := 0; i < meta.TotalChunks; i++ {
		if _, err := os.Stat(chunkPath(uploadDir, i)); err != nil {
			sendJSONError(w, fmt.Sprintf("Chunk %d is missing", i), http.StatusConflict)
			return
		}
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = meta.FileName
	}

	assembled, size, err := assembleChunks(uploadDir, meta.TotalChunks)
	if err != nil {
		sendJSONError(w, fmt.Sprintf("Failed to assemble chunks: %v", err), http.StatusInternalServerError)
		return
	}
	defer assembled.Close()
	defer os.Remove(assembled.Name())

	metadata := make(map[string]string)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["fileName"] = fileName
	if req.DocumentType != "" {
		metadata["documentType"] = req.DocumentType
	}
	if req.Context != "" {
		metadata["context"] = req.Context
	}
	if req.ProjectID != "" {
		metadata["projectId"] = req.ProjectID
	}

	id, err := h.provider.Store(r.Context(), fileName, assembled, size, metadata)
	if err != nil {
		sendJSONError(w, fmt.Sprintf("Failed to store file: %v", err), http.StatusInternalServerError)
		return
	}

	os.RemoveAll(uploadDir)

	result := &models.ServerFile{
		ID:          id,
		Name:        fileName,
		Size:        size,
		ContentType: metadata["contentType"],
		UploadedAt:  time.Now(),
		StorageType: "default",
		StorageID:   id,
		Metadata:    metadata,
	}

	if h.hub != nil {
		h.hub.Broadcast("upload_finalized", req.UploadID, result)
	}

	sendJSONResponse(w, models.APIResponse{
		Success: true,
		Message: "Upload finalized",
		Data:    result,
	}, http.StatusOK)
}

// Helper functions

// chunkPath returns the staging path of one chunk
func chunkPath(uploadDir string, index int) string {
	return filepath.Join(uploadDir, fmt.Sprintf("%06d.part", index))
}

// readSessionMeta loads the session metadata for an upload directory
func readSessionMeta(uploadDir string) (*sessionMeta, error) {
	data, err := os.ReadFile(filepath.Join(uploadDir, sessionMetaFile))
	if err != nil {
		return nil, err
	}

	var meta sessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// contiguousChunks counts staged chunks from index zero upward and sums their bytes
func contiguousChunks(uploadDir string, totalChunks int) (int, int64) {
	next := 0
	var bytes int64

	for i := 0; i < totalChunks; i++ {
		info, err := os.Stat(chunkPath(uploadDir, i))
		if err != nil {
			break
		}
		next = i + 1
		bytes += info.Size()
	}

	return next, bytes
}

// assembleChunks concatenates staged chunks in index order into a temp file
// positioned at its beginning
func assembleChunks(uploadDir string, totalChunks int) (*os.File, int64, error) {
	out, err := os.CreateTemp("", "assembled-*")
	if err != nil {
		return nil, 0, err
	}

	var size int64
	for i := 0; i < totalChunks; i++ {
		part, err := os.Open(chunkPath(uploadDir, i))
		if err != nil {
			out.Close()
			os.Remove(out.Name())
			return nil, 0, err
		}

		n, err := io.Copy(out, part)
		part.Close()
		if err != nil {
			out.Close()
			os.Remove(out.Name())
			return nil, 0, err
		}
		size += n
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		out.Close()
		os.Remove(out.Name())
		return nil, 0, err
	}

	return out, size, nil
}

// validUploadID rejects identifiers that could escape the staging directory
func validUploadID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, "/\\.")
}

// parseMetadataField decodes the metadata form field, tolerating absence
func parseMetadataField(value string) map[string]string {
	metadata := make(map[string]string)
	if value != "" {
		json.Unmarshal([]byte(value), &metadata)
	}
	return metadata
}

// sendJSONResponse sends a JSON response to the client
func sendJSONResponse(w http.ResponseWriter, response interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// sendJSONError sends a JSON error response to the client
func sendJSONError(w http.ResponseWriter, message string, status int) {
	sendJSONResponse(w, models.APIResponse{
		Success: false,
		Error:   message,
	}, status)
}
