// Command server runs the upload service: simple uploads, chunked uploads
// with resume, and a websocket event feed.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/uploadkit/internal/config"
	"github.com/example/uploadkit/internal/handlers"
	"github.com/example/uploadkit/internal/middleware"
	"github.com/example/uploadkit/internal/storage"
)

func main() {
	configFile := flag.String("config", "config.json", "Path to configuration file")
	flag.Parse()

	if err := config.LoadConfig(*configFile); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	provider, err := createStorageProvider()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	hub := handlers.NewEventHub(config.AppConfig.Server.AllowedOrigins)
	defer hub.Close()

	uploadHandler, err := handlers.NewUploadHandler(config.AppConfig.Server.StagingDir, provider, hub)
	if err != nil {
		log.Fatalf("Failed to initialize upload handler: %v", err)
	}

	fileHandler := handlers.NewFileHandler(provider)

	router := mux.NewRouter()
	router.HandleFunc("/api/upload", uploadHandler.SimpleUpload).Methods("POST")
	router.HandleFunc("/api/upload/chunked", uploadHandler.UploadChunk).Methods("POST")
	router.HandleFunc("/api/upload/chunked/finalize", uploadHandler.Finalize).Methods("POST")
	router.HandleFunc("/api/upload/resume/{uploadId}", uploadHandler.ResumeStatus).Methods("GET")
	router.HandleFunc("/api/files", fileHandler.ListFiles).Methods("GET")
	router.HandleFunc("/api/files/{id}", fileHandler.DownloadFile).Methods("GET")
	router.HandleFunc("/api/files/{id}", fileHandler.DeleteFile).Methods("DELETE")
	router.HandleFunc("/api/storage/status", fileHandler.ProviderStatus).Methods("GET")
	router.HandleFunc("/ws", hub.ServeWS)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := middleware.Chain(router,
		middleware.RequireToken("X-Upload-Token", config.AppConfig.Server.AuthToken),
		middleware.CORS(config.AppConfig.Server.AllowedOrigins),
		middleware.Logger(),
		middleware.Recover(),
	)

	server := &http.Server{
		Addr:         config.GetAddressString(),
		Handler:      handler,
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Upload service listening on %s", server.Addr)

		var err error
		if config.AppConfig.Server.CertFile != "" && config.AppConfig.Server.KeyFile != "" {
			err = server.ListenAndServeTLS(config.AppConfig.Server.CertFile, config.AppConfig.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")

	timeout := time.Duration(config.AppConfig.Server.ShutdownTimeout) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// createStorageProvider builds the configured storage provider, falling back
// to local storage when a remote backend cannot be initialized
func createStorageProvider() (storage.Provider, error) {
	providerType := config.AppConfig.Storage.DefaultProvider

	var providerConfig map[string]string
	switch providerType {
	case "s3", "amazon", "aws":
		providerConfig = config.AppConfig.Storage.S3
	case "gcs", "google":
		providerConfig = config.AppConfig.Storage.Google
	default:
		providerConfig = config.AppConfig.Storage.Local
	}

	provider, err := storage.CreateProvider(providerType, providerConfig)
	if err != nil {
		if providerType == "local" {
			return nil, err
		}

		log.Printf("Falling back to local storage: %v", err)
		return storage.CreateProvider("local", config.AppConfig.Storage.Local)
	}

	return provider, nil
}
