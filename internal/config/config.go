// Package config provides configuration management for the upload pipeline
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Settings holds the application configuration
type Settings struct {
	Server  ServerConfig  `json:"server"`
	Client  ClientConfig  `json:"client"`
	Storage StorageConfig `json:"storage"`
}

// ServerConfig contains upload-service configuration
type ServerConfig struct {
	Port            int      `json:"port"`
	Host            string   `json:"host"`
	StagingDir      string   `json:"stagingDir"`
	CertFile        string   `json:"certFile"`
	KeyFile         string   `json:"keyFile"`
	ShutdownTimeout int      `json:"shutdownTimeout"`
	AllowedOrigins  []string `json:"allowedOrigins"`
	AuthToken       string   `json:"authToken"`
}

// ClientConfig contains upload-client configuration
type ClientConfig struct {
	UploadURL          string   `json:"uploadUrl"`
	ChunkedUploadURL   string   `json:"chunkedUploadUrl"`
	ResumeURL          string   `json:"resumeUrl"`
	AuthToken          string   `json:"authToken"`
	ChunkSize          int64    `json:"chunkSize"`
	RetryAttempts      int      `json:"retryAttempts"`
	RetryDelayMS       int      `json:"retryDelayMs"`
	ExponentialBackoff bool     `json:"exponentialBackoff"`
	Concurrency        int      `json:"concurrency"`
	MaxFileSize        int64    `json:"maxFileSize"`
	AllowedExtensions  []string `json:"allowedExtensions"`
	MaxImageWidth      int      `json:"maxImageWidth"`
	MaxImageHeight     int      `json:"maxImageHeight"`
	ImageQuality       int      `json:"imageQuality"`
	ResumeDBPath       string   `json:"resumeDbPath"`
	Context            string   `json:"context"`
	ProjectID          string   `json:"projectId"`
}

// StorageConfig contains storage-related configuration
type StorageConfig struct {
	DefaultProvider string            `json:"defaultProvider"`
	Local           map[string]string `json:"local"`
	S3              map[string]string `json:"s3"`
	Google          map[string]string `json:"google"`
}

// AppConfig is the global application configuration
var AppConfig Settings

// LoadConfig loads configuration from a file and environment variables
func LoadConfig(configFile string) error {
	// Set defaults
	AppConfig = Settings{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			StagingDir:      "./staging",
			ShutdownTimeout: 30,
		},
		Client: ClientConfig{
			UploadURL:          "http://localhost:8080/api/upload",
			ChunkedUploadURL:   "http://localhost:8080/api/upload/chunked",
			ResumeURL:          "http://localhost:8080/api/upload/resume",
			ChunkSize:          1 << 20, // 1 MB
			RetryAttempts:      3,
			RetryDelayMS:       1000,
			Concurrency:        3,
			MaxFileSize:        100 << 20, // 100 MB
			AllowedExtensions:  []string{".jpg", ".jpeg", ".png", ".gif", ".pdf", ".txt", ".csv", ".docx", ".mp3", ".mp4"},
			MaxImageWidth:      1920,
			MaxImageHeight:     1080,
			ImageQuality:       85,
			ResumeDBPath:       "./resume.db",
		},
		Storage: StorageConfig{
			DefaultProvider: "local",
			Local:           map[string]string{"basePath": "./uploads"},
		},
	}

	// Load from config file if it exists
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return fmt.Errorf("error reading config file: %w", err)
			}

			if err := json.Unmarshal(data, &AppConfig); err != nil {
				return fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	// Override with environment variables
	overrideWithEnv()

	// Create required directories
	if err := ensureDirectoriesExist(); err != nil {
		return err
	}

	return nil
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv() {
	// Server config
	if port := os.Getenv("UP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			AppConfig.Server.Port = p
		}
	}

	if host := os.Getenv("UP_HOST"); host != "" {
		AppConfig.Server.Host = host
	}

	if stagingDir := os.Getenv("UP_STAGING_DIR"); stagingDir != "" {
		AppConfig.Server.StagingDir = stagingDir
	}

	if certFile := os.Getenv("UP_CERT_FILE"); certFile != "" {
		AppConfig.Server.CertFile = certFile
	}

	if keyFile := os.Getenv("UP_KEY_FILE"); keyFile != "" {
		AppConfig.Server.KeyFile = keyFile
	}

	if token := os.Getenv("UP_AUTH_TOKEN"); token != "" {
		AppConfig.Server.AuthToken = token
		AppConfig.Client.AuthToken = token
	}

	if origins := os.Getenv("UP_ALLOWED_ORIGINS"); origins != "" {
		AppConfig.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	// Client config
	if chunkSize := os.Getenv("UP_CHUNK_SIZE"); chunkSize != "" {
		if cs, err := strconv.ParseInt(chunkSize, 10, 64); err == nil && cs > 0 {
			AppConfig.Client.ChunkSize = cs
		}
	}

	if attempts := os.Getenv("UP_RETRY_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			AppConfig.Client.RetryAttempts = a
		}
	}

	if concurrency := os.Getenv("UP_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil && c > 0 {
			AppConfig.Client.Concurrency = c
		}
	}

	if backoff := os.Getenv("UP_EXPONENTIAL_BACKOFF"); backoff != "" {
		AppConfig.Client.ExponentialBackoff = backoff == "true" || backoff == "1"
	}

	if resumeDB := os.Getenv("UP_RESUME_DB"); resumeDB != "" {
		AppConfig.Client.ResumeDBPath = resumeDB
	}

	// Storage config
	if provider := os.Getenv("UP_STORAGE_PROVIDER"); provider != "" {
		AppConfig.Storage.DefaultProvider = provider
	}

	if basePath := os.Getenv("UP_STORAGE_PATH"); basePath != "" {
		if AppConfig.Storage.Local == nil {
			AppConfig.Storage.Local = make(map[string]string)
		}
		AppConfig.Storage.Local["basePath"] = basePath
	}
}

// ensureDirectoriesExist creates required directories if they don't exist
func ensureDirectoriesExist() error {
	dirs := []string{
		AppConfig.Server.StagingDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}

		if !filepath.IsAbs(dir) {
			dir = filepath.Clean(dir)
		}

		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// GetAddressString returns the address string for the server to listen on
func GetAddressString() string {
	return fmt.Sprintf("%s:%d", AppConfig.Server.Host, AppConfig.Server.Port)
}
