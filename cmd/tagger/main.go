// tagger analyzes image files and directories in one batch and writes the
// results as JSON and/or CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go-image-tagger/internal/config"
	"go-image-tagger/internal/container"
	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/export"
	"go-image-tagger/internal/logger"
	"go-image-tagger/internal/storage"

	"github.com/sirupsen/logrus"
)

var (
	settingsFile = flag.String("settings", "", "YAML or JSON settings file (overrides SETTINGS_FILE)")
	outDir       = flag.String("out", ".", "directory for the export files")
	format       = flag.String("format", "both", "export format: json, csv or both")
	concurrency  = flag.Int("concurrency", 0, "images analyzed at once (overrides BATCH_CONCURRENCY)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image or directory>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	formats, err := parseFormats(*format)
	if err != nil {
		log.Fatalf("Invalid -format: %v", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *settingsFile != "" {
		cfg.SettingsFile = *settingsFile
	}
	if *concurrency > 0 {
		cfg.BatchConcurrency = *concurrency
	}

	c, err := container.NewContainer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, flag.Args(), formats); err != nil {
		logger.WithError(err).Error("Batch failed")
		c.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, c *container.Container, roots []string, formats []export.Format) error {
	ws := c.Workspace()

	paths, err := storage.ScanImages(roots...)
	if err != nil {
		return err
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.WithError(err).WithField("path", path).Warn("Skipping unreadable file")
			continue
		}
		if _, err := ws.AddImage(ctx, filepath.Base(path), data); err != nil {
			logger.WithError(err).WithField("path", path).Warn("Skipping file")
		}
	}

	if _, err := ws.Start(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ws.Stop()
	}()
	summary := ws.Wait()

	logger.WithFields(logrus.Fields{
		"selected":  summary.Selected,
		"completed": summary.Completed,
		"failed":    summary.Failed,
		"cancelled": summary.Cancelled,
		"duration":  summary.Duration.String(),
	}).Info("Batch finished")

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return apperrors.NewInternalError("failed to create output directory", err)
	}
	for _, f := range formats {
		data, err := ws.Export(f)
		if err != nil {
			return err
		}
		path := filepath.Join(*outDir, export.Filename(f))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return apperrors.NewInternalError("failed to write "+path, err)
		}
		logger.WithField("path", path).Info("Wrote export")
	}
	return nil
}

func parseFormats(value string) ([]export.Format, error) {
	if value == "both" {
		return []export.Format{export.FormatJSON, export.FormatCSV}, nil
	}
	f, err := export.ParseFormat(value)
	if err != nil {
		return nil, err
	}
	return []export.Format{f}, nil
}
