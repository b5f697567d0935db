package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/Lllllllleong/printintake/internal/config"
	"github.com/Lllllllleong/printintake/internal/models"
	"github.com/Lllllllleong/printintake/internal/pdfops"
)

// Order returns the indexed paths by ascending page count. Equal counts are
// ordered by base file name, then by full path.
func Order(index *PageCountIndex) []string {
	entries := index.Entries()
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.PageCount != b.PageCount {
			return a.PageCount < b.PageCount
		}
		if ba, bb := filepath.Base(a.Path), filepath.Base(b.Path); ba != bb {
			return ba < bb
		}
		return a.Path < b.Path
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

// Merger concatenates a category's annotated documents into one file in the
// staging directory.
type Merger struct {
	cfg *config.Config
}

func NewMerger(cfg *config.Config) *Merger {
	return &Merger{cfg: cfg}
}

// Process merges every indexed document in Order. On failure the partial
// output is removed and the returned error wraps ErrMergeFailure.
func (m *Merger) Process(ctx context.Context, cat models.Category, index *PageCountIndex) (models.MergedOutput, error) {
	logCtx := slog.With("category", cat.Key)
	order := Order(index)
	if len(order) == 0 {
		return models.MergedOutput{}, fmt.Errorf("%w: no documents to merge", ErrMergeFailure)
	}
	if err := ctx.Err(); err != nil {
		return models.MergedOutput{}, err
	}

	tmp := filepath.Join(m.cfg.StagingDir, uuid.NewString()+".pdf")
	fail := func(message string, err error) (models.MergedOutput, error) {
		_ = os.Remove(tmp)
		logCtx.Error(message, "error", err)
		return models.MergedOutput{}, fmt.Errorf("%w: %s: %v", ErrMergeFailure, message, err)
	}

	logCtx.Info("Merging documents.", "documents", len(order))
	if err := pdfops.Merge(order, tmp); err != nil {
		return fail("failed to merge documents", err)
	}
	got, err := pdfops.PageCount(tmp)
	if err != nil {
		return fail("failed to read merged output", err)
	}
	if want := index.Total(); got != want {
		return fail("merged output has wrong page count", fmt.Errorf("got %d pages, want %d", got, want))
	}

	logCtx.Info("Documents merged.", "pageCount", got, "path", tmp)
	return models.MergedOutput{
		Path:        tmp,
		Destination: m.cfg.DestinationPath(cat),
		Order:       order,
		PageCount:   got,
	}, nil
}
