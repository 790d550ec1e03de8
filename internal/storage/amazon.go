package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// AmazonS3Storage implements Provider for Amazon S3
type AmazonS3Storage struct {
	bucket   string
	prefix   string
	s3Client *s3.S3
	uploader *s3manager.Uploader
}

// NewAmazonS3Storage creates a new Amazon S3 storage provider
func NewAmazonS3Storage() *AmazonS3Storage {
	return &AmazonS3Storage{}
}

// Initialize sets up the Amazon S3 storage with configuration
func (a *AmazonS3Storage) Initialize(config map[string]string) error {
	region, ok := config["region"]
	if !ok || region == "" {
		return fmt.Errorf("region is required for Amazon S3 storage")
	}

	bucket, ok := config["bucket"]
	if !ok || bucket == "" {
		return fmt.Errorf("bucket is required for Amazon S3 storage")
	}
	a.bucket = bucket

	if prefix, ok := config["prefix"]; ok {
		a.prefix = prefix
	}

	var sess *session.Session
	var err error

	accessKey, hasAccessKey := config["accessKey"]
	secretKey, hasSecretKey := config["secretKey"]

	if hasAccessKey && hasSecretKey {
		sess, err = session.NewSession(&aws.Config{
			Region:      aws.String(region),
			Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
		})
	} else {
		// Fall back to environment variables or instance profile
		sess, err = session.NewSession(&aws.Config{
			Region: aws.String(region),
		})
	}
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %w", err)
	}

	a.s3Client = s3.New(sess)
	a.uploader = s3manager.NewUploader(sess)

	return nil
}

// Store saves an object to Amazon S3
func (a *AmazonS3Storage) Store(ctx context.Context, name string, content io.Reader, size int64, metadata map[string]string) (string, error) {
	key := fmt.Sprintf("%s%d-%s", a.prefix, time.Now().UnixNano(), name)

	s3Metadata := make(map[string]*string)
	for k, v := range metadata {
		s3Metadata[k] = aws.String(v)
	}

	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(key),
		Body:     content,
		Metadata: s3Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}

	return key, nil
}

// Retrieve returns an object from Amazon S3
func (a *AmazonS3Storage) Retrieve(ctx context.Context, id string) (io.ReadCloser, map[string]string, error) {
	output, err := a.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to retrieve file from S3: %w", err)
	}

	metadata := make(map[string]string)
	for k, v := range output.Metadata {
		if v != nil {
			metadata[k] = *v
		}
	}

	return output.Body, metadata, nil
}

// Delete removes an object from Amazon S3
func (a *AmazonS3Storage) Delete(ctx context.Context, id string) error {
	_, err := a.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}

	return nil
}

// List returns objects in Amazon S3 matching the prefix
func (a *AmazonS3Storage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix + prefix),
	}

	var objects []ObjectInfo
	err := a.s3Client.ListObjectsV2PagesWithContext(ctx, input, func(output *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range output.Contents {
			head, err := a.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				continue
			}

			metadata := make(map[string]string)
			for k, v := range head.Metadata {
				if v != nil {
					metadata[k] = *v
				}
			}

			objects = append(objects, ObjectInfo{
				ID:          *obj.Key,
				Name:        filepath.Base(*obj.Key),
				Size:        *obj.Size,
				ContentType: aws.StringValue(head.ContentType),
				ModifiedAt:  obj.LastModified.Unix(),
				Metadata:    metadata,
			})
		}

		return !lastPage
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files from S3: %w", err)
	}

	return objects, nil
}
