package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage implements Provider for local filesystem storage
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage provider
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Initialize sets up the local storage with configuration
func (l *LocalStorage) Initialize(config map[string]string) error {
	if path, ok := config["basePath"]; ok && path != "" {
		l.basePath = path
	} else {
		l.basePath = "./storage"
	}

	if _, err := os.Stat(l.basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(l.basePath, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return nil
}

// Store saves an object to the local filesystem
func (l *LocalStorage) Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	id := fmt.Sprintf("%d-%s", time.Now().UnixNano(), strings.ReplaceAll(name, " ", "_"))
	objectPath := filepath.Join(l.basePath, id)

	file, err := os.Create(objectPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		return "", fmt.Errorf("failed to write file content: %w", err)
	}

	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err == nil {
			os.WriteFile(objectPath+".meta", data, 0644)
		}
	}

	return id, nil
}

// Retrieve returns an object from the local filesystem
func (l *LocalStorage) Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error) {
	objectPath := filepath.Join(l.basePath, id)

	file, err := os.Open(objectPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, readMeta(objectPath), nil
}

// Delete removes an object from the local filesystem
func (l *LocalStorage) Delete(ctx context.Context, id string) error {
	objectPath := filepath.Join(l.basePath, id)

	if err := os.Remove(objectPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	if _, err := os.Stat(objectPath + ".meta"); err == nil {
		os.Remove(objectPath + ".meta")
	}

	return nil
}

// List returns objects in local storage matching the prefix
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	err := filepath.Walk(l.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || strings.HasSuffix(info.Name(), ".meta") {
			return nil
		}

		if prefix != "" && !strings.HasPrefix(info.Name(), prefix) {
			return nil
		}

		relPath, _ := filepath.Rel(l.basePath, path)
		metadata := readMeta(path)

		name := info.Name()
		if originalName, ok := metadata["fileName"]; ok && originalName != "" {
			name = originalName
		}

		objects = append(objects, ObjectInfo{
			ID:          relPath,
			Name:        name,
			Size:        info.Size(),
			ContentType: metadata["contentType"],
			ModifiedAt:  info.ModTime().Unix(),
			Metadata:    metadata,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return objects, nil
}

// BasePath returns the base path of this storage provider
func (l *LocalStorage) BasePath() string {
	return l.basePath
}

// readMeta loads the JSON metadata sidecar for an object, if present
func readMeta(objectPath string) map[string]string {
	metadata := make(map[string]string)
	if data, err := os.ReadFile(objectPath + ".meta"); err == nil {
		json.Unmarshal(data, &metadata)
	}
	return metadata
}
