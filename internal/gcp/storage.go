package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const (
	uploadAttempts = 4
	uploadTimeout  = 5 * time.Minute
)

// ArchiveUploader mirrors daily archives into a bucket. Objects are written
// only if absent, so re-running a day is a no-op.
type ArchiveUploader struct {
	client  *storage.Client
	bucket  string
	backoff time.Duration
}

// NewArchiveUploader returns nil when bucket is empty.
func NewArchiveUploader(ctx context.Context, bucket string) (*ArchiveUploader, error) {
	if bucket == "" {
		return nil, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &ArchiveUploader{client: client, bucket: bucket, backoff: time.Second}, nil
}

// Upload copies localPath to object with retries and exponential backoff.
func (u *ArchiveUploader) Upload(ctx context.Context, localPath, object string) error {
	logCtx := slog.With("gcsBucket", u.bucket, "gcsObject", object)
	backoff := u.backoff
	var lastErr error

	for i := 0; i < uploadAttempts; i++ {
		err := u.uploadOnce(ctx, localPath, object)
		if err == nil {
			logCtx.Info("Archive uploaded.")
			return nil
		}
		if isPreconditionFailed(err) {
			logCtx.Info("Archive already uploaded, skipping.")
			return nil
		}

		lastErr = err
		logCtx.Warn(
			"Upload failed, will retry.",
			"attempt", i+1,
			"maxRetries", uploadAttempts,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			logCtx.Error("Context cancelled during backoff. Aborting retries.", "error", ctx.Err())
			return ctx.Err()
		}
	}
	logCtx.Error("Upload failed after all retries.", "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", object, lastErr)
}

func (u *ArchiveUploader) uploadOnce(ctx context.Context, localPath, object string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer f.Close()

	writeCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	w.ContentType = "application/zip"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

func (u *ArchiveUploader) Close() error {
	return u.client.Close()
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
