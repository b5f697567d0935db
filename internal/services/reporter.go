package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/printintake/internal/models"
)

const (
	corruptArchiveSubject = "ERROR: Corrupted Files Encountered"
	failedDocumentSubject = "ERROR: Documents Failed OCR"
	noticePreamble        = "This is an automatically generated message, please DO NOT respond. \r\n\r\n"
)

// Notifier delivers an operator notice.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// ErrorLogWriter persists error records as dated text files in Dir.
type ErrorLogWriter struct {
	Dir string
}

// FileName is the log file name for rec: "<source base name> <MMddyyyy>.txt".
func (w *ErrorLogWriter) FileName(rec models.ErrorRecord) string {
	return fmt.Sprintf("%s %s.txt", filepath.Base(rec.Source), rec.CreatedAt.Format("01022006"))
}

// Write stores rec, replacing any log written for the same source on the
// same day.
func (w *ErrorLogWriter) Write(rec models.ErrorRecord) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create error log directory: %w", err)
	}
	path := filepath.Join(w.Dir, w.FileName(rec))
	if err := os.WriteFile(path, []byte(rec.Message), 0o644); err != nil {
		return "", fmt.Errorf("failed to write error log: %w", err)
	}
	return path, nil
}

// Reporter surfaces failures to an operator. A notice that cannot be sent is
// written to the error log directory instead, and reporting never fails the
// caller.
type Reporter struct {
	notifier Notifier
	logs     *ErrorLogWriter
	now      func() time.Time
}

func NewReporter(notifier Notifier, logs *ErrorLogWriter) *Reporter {
	return &Reporter{notifier: notifier, logs: logs, now: time.Now}
}

// CorruptArchiveMessage is the diagnostic sent for an unreadable archive.
func CorruptArchiveMessage(path string) string {
	return path + " was unable to be opened. File is likely corrupted."
}

// CorruptArchive reports an archive that could not be opened or read.
func (r *Reporter) CorruptArchive(ctx context.Context, path string) {
	msg := CorruptArchiveMessage(path)
	r.send(ctx, corruptArchiveSubject, msg, []models.ErrorRecord{{Source: path, Message: msg}})
}

// FailedDocuments reports documents that were dropped from a category's merge.
func (r *Reporter) FailedDocuments(ctx context.Context, cat models.Category, failures []FileFailure) {
	if len(failures) == 0 {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d document(s) in category %s failed OCR and were left out of %s.pdf:\r\n", len(failures), cat.Key, cat.DestinationFolder)
	records := make([]models.ErrorRecord, 0, len(failures))
	for _, f := range failures {
		line := fmt.Sprintf("%s failed OCR: %v", f.Path, f.Err)
		b.WriteString(line + "\r\n")
		records = append(records, models.ErrorRecord{Source: f.Path, Message: line})
	}
	r.send(ctx, failedDocumentSubject, b.String(), records)
}

func (r *Reporter) send(ctx context.Context, subject, message string, fallback []models.ErrorRecord) {
	err := errors.New("no notifier configured")
	if r.notifier != nil {
		err = r.notifier.Notify(ctx, subject, noticePreamble+message)
	}
	if err == nil {
		slog.Info("Operator notice sent.", "subject", subject)
		return
	}
	slog.Warn("Failed to send operator notice, writing error log instead.", "subject", subject, "error", err)

	now := r.now()
	for _, rec := range fallback {
		rec.CreatedAt = now
		path, werr := r.logs.Write(rec)
		if werr != nil {
			slog.Error("CRITICAL: Failed to write error log after notice failure.", "source", rec.Source, "error", werr)
			continue
		}
		slog.Info("Error log written.", "path", path)
	}
}
