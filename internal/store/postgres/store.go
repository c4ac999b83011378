// Package postgres stores extraction records in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"claimsqa/internal/domain"
)

// Store persists records in the extractions table. The content column is
// JSON rather than JSONB so the stored bytes come back unchanged.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const upsertQuery = `INSERT INTO extractions
	(document_id, content, schema_version, model, content_type, original_name, artifact_key, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (document_id) DO UPDATE SET
		content = EXCLUDED.content,
		schema_version = EXCLUDED.schema_version,
		model = EXCLUDED.model,
		content_type = EXCLUDED.content_type,
		original_name = EXCLUDED.original_name,
		artifact_key = EXCLUDED.artifact_key,
		created_at = EXCLUDED.created_at`

const selectColumns = `document_id, content, schema_version, model, content_type, original_name, artifact_key, created_at`

func (s *Store) Put(ctx context.Context, rec *domain.ExtractionRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, upsertQuery,
		rec.DocumentID, string(rec.Content), rec.SchemaVersion, rec.Model,
		rec.ContentType, rec.OriginalName, rec.ArtifactKey, createdAt)
	if err != nil {
		return fmt.Errorf("%w: postgresStore.Put: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, documentID string) (*domain.ExtractionRecord, error) {
	var rec domain.ExtractionRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT "+selectColumns+" FROM extractions WHERE document_id = $1", documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("%w: postgresStore.Get: %w", domain.ErrStoreUnavailable, err)
	}
	return &rec, nil
}

func (s *Store) List(ctx context.Context) ([]domain.ExtractionRecord, error) {
	records := []domain.ExtractionRecord{}
	err := s.db.SelectContext(ctx, &records,
		"SELECT "+selectColumns+" FROM extractions ORDER BY created_at, document_id")
	if err != nil {
		return nil, fmt.Errorf("%w: postgresStore.List: %w", domain.ErrStoreUnavailable, err)
	}
	return records, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
