package port

import (
	"context"

	"claimsqa/internal/domain"
)

// DocumentStore maps document identifiers to their extraction records.
// Implementations must be safe for concurrent use and replace a record
// atomically: Get never observes a partially written entry.
type DocumentStore interface {
	// Put inserts or overwrites the record for rec.DocumentID.
	Put(ctx context.Context, rec *domain.ExtractionRecord) error
	// Get returns domain.ErrDocumentNotFound for unknown identifiers.
	Get(ctx context.Context, documentID string) (*domain.ExtractionRecord, error)
	// List returns all records ordered by creation time, then identifier.
	List(ctx context.Context) ([]domain.ExtractionRecord, error)
	Ping(ctx context.Context) error
}
