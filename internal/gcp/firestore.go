package gcp

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/printintake/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunLedger stores one document per category run, keyed by run ID. A ledger
// without a client records nothing.
type RunLedger struct {
	client     *firestore.Client
	collection string
}

// NewRunLedger connects to Firestore when projectID is set. With no project it
// returns a ledger that discards records.
func NewRunLedger(ctx context.Context, projectID, collection string) (*RunLedger, error) {
	if projectID == "" {
		slog.Info("PROJECT_ID not set, run ledger disabled.")
		return &RunLedger{}, nil
	}
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &RunLedger{client: client, collection: collection}, nil
}

// Record writes rec, replacing the previous state of the same run.
func (l *RunLedger) Record(ctx context.Context, rec models.RunRecord) error {
	if l.client == nil {
		return nil
	}
	if rec.RunID == "" {
		return fmt.Errorf("run record for %s has no run ID", rec.Category)
	}
	if _, err := l.client.Collection(l.collection).Doc(rec.RunID).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to record run %s: %w", rec.RunID, err)
	}
	return nil
}

func (l *RunLedger) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}
