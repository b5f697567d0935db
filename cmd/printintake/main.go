package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Lllllllleong/printintake/internal/config"
	"github.com/Lllllllleong/printintake/internal/gcp"
	"github.com/Lllllllleong/printintake/internal/ocr"
	"github.com/Lllllllleong/printintake/internal/ocr/tesseract"
	"github.com/Lllllllleong/printintake/internal/render"
	"github.com/Lllllllleong/printintake/internal/services"
)

const banner = "Print Intake OCR and Merge Utility"

var logLevel = new(slog.LevelVar)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

func main() {
	fmt.Println(banner)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		slog.Error("Run finished with errors.", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(workDir())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logLevel.Set(cfg.LogLevel)

	pool := ocr.NewPool(cfg.OCRConcurrency, tesseract.NewFactory(tesseract.Options{
		WorkDir:        cfg.OCRWorkDir,
		TessdataPrefix: cfg.TessdataPrefix,
		Languages:      strings.Split(cfg.OCRLanguage, "+"),
	}))
	defer func() {
		if err := pool.Close(); err != nil {
			slog.Warn("Failed to close OCR engines.", "error", err)
		}
	}()

	ledger, err := gcp.NewRunLedger(ctx, cfg.ProjectID, cfg.LedgerCollection)
	if err != nil {
		return err
	}
	defer ledger.Close()

	var uploader services.Uploader
	archiveUploader, err := gcp.NewArchiveUploader(ctx, cfg.ArchiveBucket)
	if err != nil {
		return err
	}
	if archiveUploader != nil {
		defer archiveUploader.Close()
		uploader = archiveUploader
	}

	reporter := services.NewReporter(
		services.NewMailNotifier(cfg.SMTP),
		&services.ErrorLogWriter{Dir: cfg.ErrorLogDir},
	)
	pipeline := services.NewPipeline(
		cfg,
		services.NewExtractor(cfg, reporter),
		services.NewOCRStage(cfg, pool, render.NewFitzRenderer(cfg.RenderDPI), services.NewAnnotator()),
		services.NewMerger(cfg),
		services.NewDelivery(cfg, uploader),
		reporter,
		ledger,
	)
	slog.Info("Pipeline initialized.", "categories", len(cfg.EnabledCategories()), "ocrWorkers", pool.Size())
	return pipeline.Run(ctx)
}

// workDir is the directory holding the executable; local working folders are
// created next to it.
func workDir() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	return filepath.Dir(exe)
}
