// Package models provides data structures shared across the upload pipeline
package models

import (
	"time"
)

// Status is the lifecycle state of a file under management
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// FileRecord represents one user-selected file under management by the uploader
type FileRecord struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Size          int64             `json:"size"`
	ContentType   string            `json:"contentType"`
	DocumentType  string            `json:"documentType,omitempty"`
	Status        Status            `json:"status"`
	Progress      float64           `json:"progress"`
	UploadedBytes int64             `json:"uploadedBytes"`
	ChunkIndex    int               `json:"chunkIndex"`
	UploadID      string            `json:"uploadId,omitempty"`
	Metadata      map[string]string `json:"metadata"`
	Thumbnail     []byte            `json:"-"`
	Warnings      []string          `json:"warnings,omitempty"`
	Attempts      int               `json:"attempts"`
	AddedAt       time.Time         `json:"addedAt"`
	StartedAt     time.Time         `json:"startedAt"`

	// Payload holds the (possibly processed) file content pending upload.
	Payload []byte `json:"-"`
}

// UploadSession tracks resumability for one chunked upload.
// Persisted client-side keyed by UploadID; cleared on finalize or cancel.
type UploadSession struct {
	UploadID      string `json:"uploadId"`
	NextChunk     int    `json:"nextChunk"`
	UploadedBytes int64  `json:"uploadedBytes"`
	TotalBytes    int64  `json:"totalBytes"`
}

// BatchState aggregates upload progress over all files in a manager instance
type BatchState struct {
	TotalFiles    int   `json:"totalFiles"`
	Completed     int   `json:"completed"`
	Failed        int   `json:"failed"`
	TotalBytes    int64 `json:"totalBytes"`
	UploadedBytes int64 `json:"uploadedBytes"`
	IsUploading   bool  `json:"isUploading"`
}

// ServerFile is the server-side reference returned by upload and finalize calls
type ServerFile struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Size        int64             `json:"size"`
	ContentType string            `json:"contentType"`
	UploadedAt  time.Time         `json:"uploadedAt"`
	StorageType string            `json:"storageType"`
	StorageID   string            `json:"storageId"`
	Metadata    map[string]string `json:"metadata"`
}

// ResumeStatus is the server's answer to a resume query
type ResumeStatus struct {
	NextChunk     int   `json:"nextChunk"`
	UploadedBytes int64 `json:"uploadedBytes"`
	TotalBytes    int64 `json:"totalBytes"`
}

// APIResponse is a generic API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
