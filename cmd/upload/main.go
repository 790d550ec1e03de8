// Command upload sends local files to the upload service from the terminal.
// Files at or under the chunk size go up in a single request; larger files
// are chunked and can resume after an interruption.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/example/uploadkit/internal/api"
	"github.com/example/uploadkit/internal/config"
	"github.com/example/uploadkit/internal/models"
	"github.com/example/uploadkit/internal/processors"
	"github.com/example/uploadkit/internal/resume"
	"github.com/example/uploadkit/internal/transfer"
	"github.com/example/uploadkit/internal/uploader"
	"github.com/example/uploadkit/internal/validation"
)

func main() {
	configFile := flag.String("config", "config.json", "Path to configuration file")
	documentType := flag.String("type", "", "Document type applied to every file")
	uploadCtx := flag.String("context", "", "Upload context forwarded to the server")
	projectID := flag.String("project", "", "Project ID forwarded to the server")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] file...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := config.LoadConfig(*configFile); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig.Client

	store, err := resume.OpenBolt(cfg.ResumeDBPath)
	if err != nil {
		log.Fatalf("Failed to open resume database: %v", err)
	}
	defer store.Close()

	client := api.NewClient(api.Config{
		UploadURL:        cfg.UploadURL,
		ChunkedUploadURL: cfg.ChunkedUploadURL,
		ResumeURL:        cfg.ResumeURL,
		AuthToken:        cfg.AuthToken,
	})

	engine := transfer.NewEngine(client, store, transfer.Config{
		ChunkSize: cfg.ChunkSize,
		Resumable: true,
		Context:   *uploadCtx,
		ProjectID: *projectID,
	})

	validators := validation.NewChain(cfg.AllowedExtensions, cfg.MaxFileSize,
		&validation.ExtensionValidator{},
		&validation.SizeValidator{},
		&validation.RequiredMetadataValidator{},
		&validation.ImageDimensionValidator{MaxWidth: cfg.MaxImageWidth, MaxHeight: cfg.MaxImageHeight},
	)

	procs := processors.NewChain(processors.Options{
		MaxWidth:          cfg.MaxImageWidth,
		MaxHeight:         cfg.MaxImageHeight,
		Quality:           cfg.ImageQuality,
		ThumbnailSize:     128,
		ExtractMetadata:   true,
		GenerateThumbnail: true,
	},
		processors.NewImageProcessor(),
		processors.NewTextProcessor(),
		processors.NewCSVProcessor(),
		processors.NewDocumentProcessor(),
		processors.NewMediaProcessor(),
	)

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	manager := uploader.NewManager(client, engine, validators, procs, uploader.Options{
		RetryAttempts:      cfg.RetryAttempts,
		RetryDelay:         time.Duration(cfg.RetryDelayMS) * time.Millisecond,
		ExponentialBackoff: cfg.ExponentialBackoff,
		Concurrency:        cfg.Concurrency,
		Context:            *uploadCtx,
		ProjectID:          *projectID,
	}, uploader.Callbacks{
		UploadStart: func(rec *models.FileRecord) {
			fmt.Printf("Uploading %s (%d bytes)...\n", rec.Name, rec.Size)
		},
		UploadProgress: func(rec *models.FileRecord, percent float64) {
			fmt.Printf("  %s: %.1f%%\n", rec.Name, percent)
		},
		UploadComplete: func(rec *models.FileRecord, result *models.ServerFile) {
			fmt.Printf("%s %s -> %s\n", green("OK"), rec.Name, result.ID)
		},
		UploadError: func(rec *models.FileRecord, err error) {
			fmt.Printf("%s %s: %v\n", red("FAILED"), rec.Name, err)
		},
		ValidationError: func(fileName string, messages []string) {
			for _, msg := range messages {
				fmt.Printf("%s %s: %s\n", red("REJECTED"), fileName, msg)
			}
		},
	})

	ctx := context.Background()
	rejected := 0

	for _, path := range flag.Args() {
		payload, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}

		rec, err := manager.Add(ctx, filepath.Base(path), payload, *documentType, nil)
		if err != nil {
			rejected++
			continue
		}

		for _, warning := range rec.Warnings {
			fmt.Printf("%s %s: %s\n", yellow("WARNING"), rec.Name, warning)
		}
	}

	results := manager.UploadAll(ctx)

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}

	stats := manager.Stats()
	fmt.Printf("\n%d uploaded, %d failed, %d rejected", len(results)-failed, failed, rejected)
	if stats.SpeedBytesPerSec > 0 {
		fmt.Printf(" (%.0f KB/s)", stats.SpeedBytesPerSec/1024)
	}
	fmt.Println()

	if failed > 0 || rejected > 0 {
		os.Exit(1)
	}
}
