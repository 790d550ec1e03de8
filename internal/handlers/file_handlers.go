package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/uploadkit/internal/models"
	"github.com/example/uploadkit/internal/storage"
)

// FileHandler serves management operations over stored uploads
type FileHandler struct {
	provider storage.Provider
}

// NewFileHandler creates a file handler over the given storage provider
func NewFileHandler(provider storage.Provider) *FileHandler {
	return &FileHandler{provider: provider}
}

// ListFiles returns the stored objects, optionally filtered by a name prefix
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	objects, err := h.provider.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		sendJSONError(w, fmt.Sprintf("Failed to list files: %v", err), http.StatusInternalServerError)
		return
	}

	sendJSONResponse(w, models.APIResponse{
		Success: true,
		Data:    objects,
	}, http.StatusOK)
}

// DownloadFile streams a stored object back to the client
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	reader, metadata, err := h.provider.Retrieve(r.Context(), id)
	if err != nil {
		sendJSONError(w, "File not found", http.StatusNotFound)
		return
	}
	defer reader.Close()

	contentType := metadata["contentType"]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	if name := metadata["fileName"]; name != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}

	if _, err := io.Copy(w, reader); err != nil {
		// Headers are already out; all we can do is log via the middleware
		return
	}
}

// DeleteFile removes a stored object
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.provider.Delete(r.Context(), id); err != nil {
		sendJSONError(w, fmt.Sprintf("Failed to delete file: %v", err), http.StatusInternalServerError)
		return
	}

	sendJSONResponse(w, models.APIResponse{
		Success: true,
		Message: "File deleted",
	}, http.StatusOK)
}

// ProviderStatus reports which storage backends are currently usable
func (h *FileHandler) ProviderStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})
	for _, providerType := range []string{"local", "s3", "google"} {
		available, reason := storage.IsProviderAvailable(providerType)
		status[providerType] = map[string]interface{}{
			"available": available,
			"reason":    reason,
		}
	}

	sendJSONResponse(w, models.APIResponse{
		Success: true,
		Data:    status,
	}, http.StatusOK)
}
