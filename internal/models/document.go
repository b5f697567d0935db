package models

import "time"

// StagedDocument is one PDF resident in the local staging directory for a
// category. PageCount and Text are populated by the OCR stage.
type StagedDocument struct {
	Path       string
	PageCount  int
	Text       string
	Normalized bool
}

// MergedOutput is the single concatenated PDF produced for a category.
type MergedOutput struct {
	Path        string
	Destination string
	Order       []string
	PageCount   int
}

// ErrorRecord is a textual log entry tied to one failed source file.
type ErrorRecord struct {
	Source    string
	Message   string
	CreatedAt time.Time
}

// RunRecord represents the ledger entry for one category's processing run.
// It tracks the overall status and counts of the run.
type RunRecord struct {
	RunID        string    `firestore:"runId,omitempty"`
	Category     string    `firestore:"category,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	FileCount    int       `firestore:"fileCount,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	FailedFiles  []string  `firestore:"failedFiles,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	Destination  string    `firestore:"destination,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
}

// Run statuses recorded in the ledger.
const (
	StatusExtracting = "EXTRACTING"
	StatusOCR        = "OCR"
	StatusMerging    = "MERGING"
	StatusDelivered  = "DELIVERED"
	StatusSkipped    = "SKIPPED"
	StatusFailed     = "FAILED"
)
