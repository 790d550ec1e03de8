package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GoogleCloudStorage implements Provider for Google Cloud Storage
type GoogleCloudStorage struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGoogleCloudStorage creates a new Google Cloud Storage provider
func NewGoogleCloudStorage() *GoogleCloudStorage {
	return &GoogleCloudStorage{}
}

// Initialize sets up the Google Cloud Storage with configuration
func (g *GoogleCloudStorage) Initialize(config map[string]string) error {
	var opts []option.ClientOption

	if credFile, ok := config["credentialFile"]; ok && credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create Google Cloud Storage client: %w", err)
	}
	g.client = client

	bucketName, ok := config["bucket"]
	if !ok || bucketName == "" {
		return fmt.Errorf("bucket is required for Google Cloud Storage")
	}
	g.bucketName = bucketName

	if prefix, ok := config["prefix"]; ok {
		g.prefix = prefix
	}

	return nil
}

// Store saves an object to Google Cloud Storage
func (g *GoogleCloudStorage) Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	objectName := fmt.Sprintf("%s%d-%s", g.prefix, time.Now().UnixNano(), name)

	obj := g.client.Bucket(g.bucketName).Object(objectName)
	writer := obj.NewWriter(ctx)
	writer.Metadata = metadata

	if _, err := io.Copy(writer, content); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write file content to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize file upload to GCS: %w", err)
	}

	return objectName, nil
}

// Retrieve returns an object from Google Cloud Storage
func (g *GoogleCloudStorage) Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error) {
	obj := g.client.Bucket(g.bucketName).Object(id)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get object attributes from GCS: %w", err)
	}

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file from GCS: %w", err)
	}

	return reader, attrs.Metadata, nil
}

// Delete removes an object from Google Cloud Storage
func (g *GoogleCloudStorage) Delete(ctx context.Context, id string) error {
	obj := g.client.Bucket(g.bucketName).Object(id)

	if err := obj.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete file from GCS: %w", err)
	}

	return nil
}

// List returns objects in Google Cloud Storage matching the prefix
func (g *GoogleCloudStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	bucket := g.client.Bucket(g.bucketName)
	it := bucket.Objects(ctx, &storage.Query{Prefix: g.prefix + prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list files from GCS: %w", err)
		}

		objects = append(objects, ObjectInfo{
			ID:          attrs.Name,
			Name:        filepath.Base(attrs.Name),
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			ModifiedAt:  attrs.Updated.Unix(),
			Metadata:    attrs.Metadata,
		})
	}

	return objects, nil
}
