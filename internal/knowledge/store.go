package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const upsertDocumentSQL = `INSERT INTO documents (id, source, content, embedding, metadata)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE
	SET source = EXCLUDED.source,
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding,
		metadata = EXCLUDED.metadata,
		updated_at = now()`

const searchDocumentsSQL = `SELECT id, source, content, metadata, created_at,
		1 - (embedding <=> $1) AS similarity
	FROM documents
	ORDER BY embedding <=> $1
	LIMIT $2`

const countDocumentsSQL = `SELECT COUNT(*) FROM documents`

const deleteDocumentSQL = `DELETE FROM documents WHERE id = $1`

// Store manages the document index backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector for the given text with a bounded timeout.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	values, err := s.embedder.Embed(embedCtx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(values) != VectorDimension {
		return pgvector.Vector{}, fmt.Errorf("embedding dimension %d, want %d", len(values), VectorDimension)
	}
	return pgvector.NewVector(values), nil
}

// Upsert embeds and indexes a document, replacing any existing document
// with the same ID.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	if doc.Content == "" {
		return ErrEmptyContent
	}
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	vec, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	if _, err := s.pool.Exec(ctx, upsertDocumentSQL,
		doc.ID, doc.Source, doc.Content, vec, metadata); err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("indexed document", "id", doc.ID, "source", doc.Source, "content_len", len(doc.Content))
	return nil
}

// Search embeds the query and returns the k most similar documents,
// ordered by descending similarity.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	rows, err := s.pool.Query(queryCtx, searchDocumentsSQL, vec, k)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			doc        Document
			metadata   []byte
			createdAt  time.Time
			similarity float64
		)
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.Content, &metadata, &createdAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
				s.logger.Warn("unparseable document metadata", "id", doc.ID, "error", err)
			}
		}
		doc.CreatedAt = createdAt
		results = append(results, Result{Document: doc, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, countDocumentsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// Delete removes a document from the index. Deleting an unknown ID is not
// an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, deleteDocumentSQL, id); err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	s.logger.Debug("deleted document", "id", id)
	return nil
}

// Ping reports whether the index is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
