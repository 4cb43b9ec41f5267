package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"orangecatalog/pipeline/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository mirrors emitted documents into Postgres for ad-hoc querying.
// The JSON files on disk stay the source of truth.
type DocumentRepository interface {
	EnsureSchema(ctx context.Context) error
	SaveDocument(ctx context.Context, kind domain.DocumentKind, id string, doc any) error
	SaveDocuments(ctx context.Context, kind domain.DocumentKind, docs map[string]any) error
}

type documentRepository struct {
	db *pgxpool.Pool
}

func NewDocumentRepository(db *pgxpool.Pool) DocumentRepository {
	return &documentRepository{
		db: db,
	}
}

const upsertDocument = `
	INSERT INTO catalog_documents (id, kind, data, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (id, kind)
	DO UPDATE SET data = $3, updated_at = now()`

func (r *documentRepository) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS catalog_documents (
		id         TEXT        NOT NULL,
		kind       TEXT        NOT NULL,
		data       JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (id, kind)
	)`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create catalog_documents: %w", err)
	}
	return nil
}

func (r *documentRepository) SaveDocument(ctx context.Context, kind domain.DocumentKind, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
	}
	if _, err := r.db.Exec(ctx, upsertDocument, id, string(kind), data); err != nil {
		return fmt.Errorf("failed to save %s %s: %w", kind, id, err)
	}
	return nil
}

// SaveDocuments upserts a whole kind in one batch round trip.
func (r *documentRepository) SaveDocuments(ctx context.Context, kind domain.DocumentKind, docs map[string]any) error {
	if len(docs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for id, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
		}
		batch.Queue(upsertDocument, id, string(kind), data)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save %d %s documents: %w", len(docs), kind, err)
	}
	return nil
}
