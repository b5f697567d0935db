package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/printintake/internal/config"
	"github.com/Lllllllleong/printintake/internal/models"
)

// Ledger records the state of a category run.
type Ledger interface {
	Record(ctx context.Context, rec models.RunRecord) error
}

type noopLedger struct{}

func (noopLedger) Record(context.Context, models.RunRecord) error { return nil }

// Pipeline runs every enabled category through extraction, OCR, merge and
// delivery, then archives the inputs and prunes old error logs.
type Pipeline struct {
	cfg       *config.Config
	extractor *Extractor
	ocr       *OCRStage
	merger    *Merger
	delivery  *Delivery
	reporter  *Reporter
	ledger    Ledger
	now       func() time.Time
}

// NewPipeline wires the stages together. ledger may be nil.
func NewPipeline(cfg *config.Config, extractor *Extractor, ocrStage *OCRStage, merger *Merger, delivery *Delivery, reporter *Reporter, ledger Ledger) *Pipeline {
	if ledger == nil {
		ledger = noopLedger{}
	}
	return &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		ocr:       ocrStage,
		merger:    merger,
		delivery:  delivery,
		reporter:  reporter,
		ledger:    ledger,
		now:       time.Now,
	}
}

// Run processes categories one at a time. A failing category is recorded and
// the run moves on; the joined category errors are returned at the end.
func (p *Pipeline) Run(ctx context.Context) error {
	hasInput, err := HasInput(p.cfg)
	if err != nil {
		return err
	}
	if !hasInput {
		slog.Debug("No input files found.")
		return nil
	}

	cats := p.cfg.EnabledCategories()
	var errs []error
	for _, cat := range cats {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.runCategory(ctx, cat); err != nil {
			errs = append(errs, fmt.Errorf("category %s: %w", cat.Key, err))
		}
	}

	if err := ClearDir(p.cfg.StagingDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear staging dir: %w", err))
	}
	if _, err := p.delivery.ArchiveInputs(ctx, cats); err != nil {
		slog.Error("Failed to archive input files.", "error", err)
		errs = append(errs, err)
	}
	if _, err := p.delivery.PruneErrorLogs(p.now()); err != nil {
		slog.Error("Failed to prune error logs.", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Pipeline) runCategory(ctx context.Context, cat models.Category) error {
	run := &models.RunRecord{
		RunID:       uuid.NewString(),
		Category:    cat.Key,
		Destination: p.cfg.DestinationPath(cat),
		CreatedAt:   p.now(),
	}
	logCtx := slog.With("category", cat.Key, "runId", run.RunID)
	logCtx.Info("Processing category.")

	p.setStatus(ctx, logCtx, run, models.StatusExtracting)
	if err := ClearDir(p.cfg.StagingDir); err != nil {
		return p.handleError(ctx, logCtx, run, "failed to clear staging dir", err)
	}
	extracted, err := p.extractor.Process(ctx, cat)
	if err != nil {
		return p.handleError(ctx, logCtx, run, "failed to extract archives", err)
	}
	run.FailedFiles = append(run.FailedFiles, extracted.Corrupt...)
	run.FailedFiles = append(run.FailedFiles, extracted.Duplicates...)

	files, err := StagedFiles(p.cfg.StagingDir)
	if err != nil {
		return p.handleError(ctx, logCtx, run, "failed to list staged documents", err)
	}
	if len(files) == 0 {
		logCtx.Info("No documents staged, skipping category.")
		p.setStatus(ctx, logCtx, run, models.StatusSkipped)
		return nil
	}
	run.FileCount = len(files)

	p.setStatus(ctx, logCtx, run, models.StatusOCR)
	index, failures, err := p.ocr.Process(ctx, files, cat)
	if err != nil {
		return p.handleError(ctx, logCtx, run, "failed to run OCR", err)
	}
	if len(failures) > 0 {
		for _, f := range failures {
			run.FailedFiles = append(run.FailedFiles, f.Path)
		}
		p.reporter.FailedDocuments(ctx, cat, failures)
	}
	if index.Len() == 0 {
		return p.handleError(ctx, logCtx, run, "no documents survived OCR", ErrOCRFailure)
	}

	p.setStatus(ctx, logCtx, run, models.StatusMerging)
	merged, err := p.merger.Process(ctx, cat, index)
	if err != nil {
		return p.handleError(ctx, logCtx, run, "failed to merge documents", err)
	}
	dest, err := p.delivery.Deliver(ctx, cat, merged)
	if err != nil {
		_ = os.Remove(merged.Path)
		return p.handleError(ctx, logCtx, run, "failed to deliver merged output", err)
	}

	run.PageCount = merged.PageCount
	run.Destination = dest
	p.setStatus(ctx, logCtx, run, models.StatusDelivered)
	logCtx.Info("Category complete.", "documents", len(merged.Order), "pageCount", merged.PageCount)
	return nil
}

func (p *Pipeline) setStatus(ctx context.Context, logCtx *slog.Logger, run *models.RunRecord, status string) {
	run.Status = status
	if err := p.ledger.Record(ctx, *run); err != nil {
		logCtx.Warn("Failed to record run status.", "status", status, "error", err)
	}
}

func (p *Pipeline) handleError(ctx context.Context, logCtx *slog.Logger, run *models.RunRecord, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	run.Status = models.StatusFailed
	run.ErrorDetails = fmt.Sprintf("%s: %v", message, originalErr)
	if err := p.ledger.Record(ctx, *run); err != nil {
		logCtx.Error("CRITICAL: Failed to record FAILED status after a processing error.", "ledgerError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
