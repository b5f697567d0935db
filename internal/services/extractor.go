package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/yeka/zip"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/printintake/internal/config"
	"github.com/Lllllllleong/printintake/internal/models"
)

// ExtractResult lists the staged PDFs written by one extraction pass, the
// archives that could not be read and the entries skipped because their leaf
// name was already staged.
type ExtractResult struct {
	Extracted  []string
	Corrupt    []string
	Duplicates []string
}

// errNameTaken is returned when a staged file with the same leaf name exists.
var errNameTaken = errors.New("staged file name already taken")

// Extractor unpacks a category's archives into the staging directory.
type Extractor struct {
	cfg      *config.Config
	reporter *Reporter
}

func NewExtractor(cfg *config.Config, reporter *Reporter) *Extractor {
	return &Extractor{cfg: cfg, reporter: reporter}
}

// Process extracts every PDF entry of every archive in the category's source
// folder. An unreadable archive is reported and skipped; it never fails the
// category.
func (e *Extractor) Process(ctx context.Context, cat models.Category) (ExtractResult, error) {
	logCtx := slog.With("category", cat.Key)
	srcDir := e.cfg.SourceDir(cat)

	archives, err := listFiles(srcDir)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("failed to list source folder %s: %w", srcDir, err)
	}
	if len(archives) == 0 {
		logCtx.Info("Source folder is empty.", "path", srcDir)
		return ExtractResult{}, nil
	}
	if err := os.MkdirAll(e.cfg.StagingDir, 0o755); err != nil {
		return ExtractResult{}, fmt.Errorf("failed to create staging dir: %w", err)
	}
	logCtx.Info("Starting archive extraction.", "archives", len(archives))

	var (
		mu  sync.Mutex
		res ExtractResult
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.ExtractConcurrency)
	for _, archive := range archives {
		eg.Go(func() error {
			files, dups, err := e.extractArchive(gctx, archive)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logCtx.Error("Failed to extract archive.", "archive", archive, "error", err)
				e.reporter.CorruptArchive(gctx, archive)
				mu.Lock()
				res.Corrupt = append(res.Corrupt, archive)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			res.Extracted = append(res.Extracted, files...)
			res.Duplicates = append(res.Duplicates, dups...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return res, err
	}

	sort.Strings(res.Extracted)
	sort.Strings(res.Corrupt)
	sort.Strings(res.Duplicates)
	logCtx.Info("Archive extraction complete.", "extracted", len(res.Extracted), "corrupt", len(res.Corrupt), "duplicates", len(res.Duplicates))
	return res, nil
}

// extractArchive stages the archive's PDF entries. Staged files are created
// exclusively, so on failure only files written by this call are removed.
func (e *Extractor) extractArchive(ctx context.Context, archive string) (written, dups []string, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ExtractTimeout)
	defer cancel()

	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer r.Close()

	fail := func(err error) ([]string, []string, error) {
		removeFiles(written)
		return nil, nil, err
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
		if !strings.EqualFold(path.Ext(name), ".pdf") {
			continue
		}
		if f.IsEncrypted() {
			if e.cfg.ArchivePassword == "" {
				return fail(fmt.Errorf("%w: entry %s is encrypted and ARCHIVE_PASSWORD is not set", ErrCorruptArchive, f.Name))
			}
			f.SetPassword(e.cfg.ArchivePassword)
		}

		dest := filepath.Join(e.cfg.StagingDir, name)
		err := extractEntry(ctx, f, dest)
		if errors.Is(err, errNameTaken) {
			slog.Warn("Skipping entry, a staged file already has its name.", "archive", archive, "entry", f.Name, "path", dest)
			dups = append(dups, archive+"!"+f.Name)
			continue
		}
		if err != nil {
			return fail(fmt.Errorf("%w: entry %s: %v", ErrCorruptArchive, f.Name, err))
		}
		written = append(written, dest)
	}
	return written, dups, nil
}

func extractEntry(ctx context.Context, f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return errNameTaken
	}
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, contextReader{ctx: ctx, r: rc}); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return err
	}
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func removeFiles(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}

// listFiles returns the regular files directly inside dir. A missing dir has
// no files.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// HasInput reports whether any enabled category's source folder has entries.
func HasInput(cfg *config.Config) (bool, error) {
	for _, cat := range cfg.EnabledCategories() {
		entries, err := os.ReadDir(cfg.SourceDir(cat))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to read source folder for %s: %w", cat.Key, err)
		}
		if len(entries) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// StagedFiles returns the non-empty PDFs in the staging directory, sorted.
func StagedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list staging dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		if info.Size() > 0 {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
