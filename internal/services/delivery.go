package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yeka/zip"

	"github.com/Lllllllleong/printintake/internal/config"
	"github.com/Lllllllleong/printintake/internal/models"
)

// Uploader mirrors a local file to remote storage under object.
type Uploader interface {
	Upload(ctx context.Context, localPath, object string) error
}

// Delivery moves merged output into place and handles end-of-run housekeeping.
type Delivery struct {
	cfg      *config.Config
	uploader Uploader
	now      func() time.Time
}

// NewDelivery returns a Delivery. uploader may be nil.
func NewDelivery(cfg *config.Config, uploader Uploader) *Delivery {
	return &Delivery{cfg: cfg, uploader: uploader, now: time.Now}
}

// Deliver moves the merged file to its destination, replacing any output a
// previous run left there.
func (d *Delivery) Deliver(ctx context.Context, cat models.Category, merged models.MergedOutput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest := merged.Destination
	if dest == "" {
		dest = d.cfg.DestinationPath(cat)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination folder: %w", err)
	}
	if err := moveFile(merged.Path, dest); err != nil {
		return "", fmt.Errorf("failed to deliver %s: %w", dest, err)
	}
	slog.Info("Merged output delivered.", "category", cat.Key, "path", dest, "pageCount", merged.PageCount)
	return dest, nil
}

// moveFile renames src to dst, copying across devices when a rename is not
// possible.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	tmp := dst + ".partial"
	if err := copyFile(src, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// ArchiveName is the daily archive file name, e.g. "Clear Channel Oct_17_2026.zip".
// The day is not padded. "_2" is a layout token, so the parts are formatted
// separately.
func ArchiveName(prefix string, day time.Time) string {
	return fmt.Sprintf("%s %s_%d_%s.zip", prefix, day.Format("Jan"), day.Day(), day.Format("2006"))
}

// ArchiveInputs copies every file in the categories' source folders into the
// daily archive as "<category key>/<file name>", then mirrors the archive to
// remote storage when an uploader is configured.
func (d *Delivery) ArchiveInputs(ctx context.Context, cats []models.Category) (string, error) {
	if err := os.MkdirAll(d.cfg.ArchiveRoot, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive root: %w", err)
	}
	archivePath := filepath.Join(d.cfg.ArchiveRoot, ArchiveName(d.cfg.ArchivePrefix, d.now()))

	tmp, err := os.CreateTemp(d.cfg.ArchiveRoot, ".archive-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", err
	}

	zw := zip.NewWriter(tmp)
	count := 0
	for _, cat := range cats {
		files, err := listFiles(d.cfg.SourceDir(cat))
		if err != nil {
			return fail(fmt.Errorf("failed to list source folder for %s: %w", cat.Key, err))
		}
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			if err := addToArchive(zw, file, cat.Key+"/"+filepath.Base(file)); err != nil {
				return fail(fmt.Errorf("failed to archive %s: %w", file, err))
			}
			count++
		}
	}
	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("failed to finalize archive: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpName, archivePath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}
	slog.Info("Input files archived.", "path", archivePath, "files", count)

	if d.uploader != nil {
		if err := d.uploader.Upload(ctx, archivePath, filepath.Base(archivePath)); err != nil {
			return archivePath, fmt.Errorf("failed to mirror archive: %w", err)
		}
	}
	return archivePath, nil
}

func addToArchive(zw *zip.Writer, file, name string) error {
	in, err := os.Open(file)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// PruneErrorLogs deletes error logs last modified before the retention
// window and returns how many were removed.
func (d *Delivery) PruneErrorLogs(now time.Time) (int, error) {
	entries, err := os.ReadDir(d.cfg.ErrorLogDir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list error logs: %w", err)
	}
	cutoff := now.Add(-d.cfg.ErrorLogRetention)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.cfg.ErrorLogDir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Old error logs pruned.", "removed", removed)
	}
	return removed, errors.Join(errs...)
}

// ClearDir deletes everything inside dir, creating dir if it is missing.
func ClearDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
