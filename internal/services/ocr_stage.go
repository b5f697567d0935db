package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/printintake/internal/config"
	"github.com/Lllllllleong/printintake/internal/models"
	"github.com/Lllllllleong/printintake/internal/ocr"
	"github.com/Lllllllleong/printintake/internal/pdfops"
)

// Renderer rasterizes the first page of a PDF for recognition.
type Renderer interface {
	RenderFirstPage(ctx context.Context, path string) (ocr.Page, error)
}

// OCRStage reads the address zone of every staged document and annotates it.
type OCRStage struct {
	cfg       *config.Config
	pool      *ocr.Pool
	renderer  Renderer
	annotator *Annotator
}

func NewOCRStage(cfg *config.Config, pool *ocr.Pool, renderer Renderer, annotator *Annotator) *OCRStage {
	return &OCRStage{cfg: cfg, pool: pool, renderer: renderer, annotator: annotator}
}

// Process recognizes and annotates files concurrently, at most one task per
// pool handle. A file is added to the returned index only after it has been
// annotated; files that fail are returned as failures and left out.
func (s *OCRStage) Process(ctx context.Context, files []string, cat models.Category) (*PageCountIndex, []FileFailure, error) {
	logCtx := slog.With("category", cat.Key)
	if err := ClearDir(s.cfg.OCRWorkDir); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare OCR work dir: %w", err)
	}

	index := NewPageCountIndex()
	var (
		mu       sync.Mutex
		failures []FileFailure
	)

	logCtx.Info("Starting OCR.", "files", len(files), "workers", s.pool.Size())
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.pool.Size())
	for _, file := range files {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := s.processFile(gctx, file, cat)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logCtx.Error("Failed to process document.", "file", file, "error", err)
				mu.Lock()
				failures = append(failures, FileFailure{Path: file, Err: err})
				mu.Unlock()
				return nil
			}
			if !index.Add(doc.Path, doc.PageCount) {
				logCtx.Warn("Document already indexed, keeping first entry.", "file", doc.Path)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return index, failures, err
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Path < failures[j].Path })
	logCtx.Info("OCR complete.", "indexed", index.Len(), "failed", len(failures))
	return index, failures, nil
}

func (s *OCRStage) processFile(ctx context.Context, path string, cat models.Category) (models.StagedDocument, error) {
	doc := models.StagedDocument{Path: path}

	n, err := pdfops.PageCount(path)
	if err != nil {
		return doc, fmt.Errorf("%w: failed to open document: %v", ErrOCRFailure, err)
	}
	doc.PageCount = n

	doc.Text, err = s.recognize(ctx, path)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", ErrOCRFailure, err)
	}

	res, err := s.annotator.Annotate(ctx, doc.Text, path, cat)
	if err != nil {
		return doc, fmt.Errorf("failed to annotate document: %w", err)
	}
	doc.Normalized = true
	slog.Debug("Document annotated.", "file", path, "pages", res.PageCount, "rotated", res.Rotated, "text", doc.Text)
	return doc, nil
}

// recognize renders page one and reads the address zone, bounded by
// OCR_TIMEOUT.
func (s *OCRStage) recognize(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OCRTimeout)
	defer cancel()

	page, err := s.renderer.RenderFirstPage(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to render page 1: %w", err)
	}

	var text string
	err = s.pool.With(ctx, func(e ocr.Engine) error {
		t, err := e.Recognize(ctx, page, s.cfg.AddressZone)
		if err != nil {
			return fmt.Errorf("failed to recognize address zone: %w", err)
		}
		text = strings.ToUpper(strings.TrimSpace(t))
		return nil
	})
	return text, err
}
