// Package api provides the typed HTTP client for the upload service endpoints
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/example/uploadkit/internal/models"
)

// TokenHeader carries the anti-forgery token on every request
const TokenHeader = "X-Upload-Token"

// DefaultTimeout bounds a single request on the simple upload path
const DefaultTimeout = 5 * time.Minute

// Config configures the endpoint client
type Config struct {
	// UploadURL is the simple whole-file upload endpoint
	UploadURL string

	// ChunkedUploadURL receives individual chunks; finalize is served under it
	ChunkedUploadURL string

	// ResumeURL answers resume queries at {ResumeURL}/{uploadId}
	ResumeURL string

	// AuthToken is the anti-forgery token attached to every request
	AuthToken string

	// Timeout bounds each request; DefaultTimeout when zero
	Timeout time.Duration
}

// Client calls the upload service endpoints
type Client struct {
	cfg  Config
	http *http.Client
}

// FinalizeRequest asks the server to assemble previously uploaded chunks
type FinalizeRequest struct {
	UploadID     string            `json:"uploadId"`
	FileName     string            `json:"fileName"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	DocumentType string            `json:"documentType,omitempty"`
	Context      string            `json:"context,omitempty"`
	ProjectID    string            `json:"projectId,omitempty"`
}

// envelope mirrors the server's response wrapper with a raw data payload
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewClient creates an endpoint client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// SimpleUpload uploads the whole file in one multipart request
func (c *Client) SimpleUpload(ctx context.Context, rec *models.FileRecord, uploadCtx, projectID string) (*models.ServerFile, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", rec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(rec.Payload); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}

	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	writer.WriteField("metadata", string(metadataJSON))
	writer.WriteField("documentType", rec.DocumentType)
	writer.WriteField("context", uploadCtx)
	writer.WriteField("projectId", projectID)

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var file models.ServerFile
	if err := c.do(req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// UploadChunk transmits one chunk of a chunked upload
func (c *Client) UploadChunk(ctx context.Context, uploadID string, index, totalChunks int, fileName string, totalBytes int64, chunk []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("chunk", fileName)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return fmt.Errorf("failed to write chunk content: %w", err)
	}

	writer.WriteField("uploadId", uploadID)
	writer.WriteField("chunkIndex", strconv.Itoa(index))
	writer.WriteField("totalChunks", strconv.Itoa(totalChunks))
	writer.WriteField("fileName", fileName)
	writer.WriteField("totalBytes", strconv.FormatInt(totalBytes, 10))

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChunkedUploadURL, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, nil)
}

// Finalize assembles the uploaded chunks into one stored object
func (c *Client) Finalize(ctx context.Context, finalize FinalizeRequest) (*models.ServerFile, error) {
	payload, err := json.Marshal(finalize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode finalize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChunkedUploadURL+"/finalize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var file models.ServerFile
	if err := c.do(req, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// ResumeStatus queries the server for a partial upload. The second return
// value is false when no partial upload exists server-side.
func (c *Client) ResumeStatus(ctx context.Context, uploadID string) (*models.ResumeStatus, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ResumeURL+"/"+uploadID, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(TokenHeader, c.cfg.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("resume query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}

	var status models.ResumeStatus
	if err := decodeEnvelope(resp, &status); err != nil {
		return nil, false, err
	}
	return &status, true, nil
}

// do executes the request and decodes the response envelope into out
func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set(TokenHeader, c.cfg.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

// decodeEnvelope unwraps the server's APIResponse envelope
func decodeEnvelope(resp *http.Response, out interface{}) error {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !env.Success {
		message := env.Error
		if message == "" {
			message = env.Message
		}
		return fmt.Errorf("server rejected request (status %d): %s", resp.StatusCode, message)
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}
