package services

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptArchive marks an archive that could not be opened or read.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrOCRFailure marks a document that could not be opened, rendered or recognized.
	ErrOCRFailure = errors.New("ocr failure")
	// ErrMergeFailure marks a category whose merge was aborted. Nothing is
	// delivered when it is returned.
	ErrMergeFailure = errors.New("merge failure")
	// ErrNotificationFailure marks an operator notice that could not be sent.
	ErrNotificationFailure = errors.New("notification failure")
)

// FileFailure pairs a staged document with the error that excluded it from
// the merge.
type FileFailure struct {
	Path string
	Err  error
}

func (f FileFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

func (f FileFailure) Unwrap() error { return f.Err }
