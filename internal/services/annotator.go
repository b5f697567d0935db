package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/printintake/internal/models"
	"github.com/Lllllllleong/printintake/internal/pdfops"
)

// Annotator normalizes rotation and stamps the hidden first-page text onto a
// staged document, rewriting it in place.
type Annotator struct{}

func NewAnnotator() *Annotator { return &Annotator{} }

func (a *Annotator) Annotate(ctx context.Context, text, path string, cat models.Category) (pdfops.AnnotateResult, error) {
	if err := ctx.Err(); err != nil {
		return pdfops.AnnotateResult{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pdfops.AnnotateResult{}, fmt.Errorf("failed to read document: %w", err)
	}
	out, res, err := pdfops.Annotate(data, text, cat.Orientation)
	if err != nil {
		return res, err
	}
	if err := writeFileAtomic(path, out); err != nil {
		return res, err
	}
	return res, nil
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory, so readers see either the old or the new file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
