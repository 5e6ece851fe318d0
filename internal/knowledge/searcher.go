// Package knowledge looks up prior notes related to the current activity
// using pgvector similarity search over Ollama embeddings.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/saaga0h/jeeves-anticipation/pkg/llm"
	"github.com/saaga0h/jeeves-anticipation/pkg/postgres"
)

// ErrEmptyQuery is returned for a blank search or index text
var ErrEmptyQuery = errors.New("empty knowledge query")

// Result is one related item with its similarity score in [0,1]
type Result struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Searcher finds items related to a free-text query
type Searcher interface {
	SearchRelated(ctx context.Context, query string, topK int) ([]Result, error)
}

// Indexer stores new items so later searches can find them
type Indexer interface {
	Index(ctx context.Context, content, source string) (string, error)
}

// DB is the subset of the postgres client used here
type DB interface {
	postgres.Execer
	postgres.Querier
}

// VectorStore implements Searcher and Indexer over the knowledge_items table
type VectorStore struct {
	db       DB
	embedder llm.Embedder
	minScore float64
	logger   *slog.Logger
}

// NewVectorStore creates a pgvector-backed knowledge store. Results scoring
// below minScore are dropped.
func NewVectorStore(db DB, embedder llm.Embedder, minScore float64, logger *slog.Logger) *VectorStore {
	return &VectorStore{
		db:       db,
		embedder: embedder,
		minScore: minScore,
		logger:   logger,
	}
}

// SearchRelated returns up to topK items ordered by cosine similarity
func (s *VectorStore) SearchRelated(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sqlQuery := `
		SELECT id, content, source, 1 - (embedding <=> $1) AS similarity
		FROM knowledge_items
		ORDER BY embedding <=> $1
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, sqlQuery, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query related items: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Content, &r.Source, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge row: %w", err)
		}
		if r.Score < s.minScore {
			continue
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge rows: %w", err)
	}

	s.logger.Debug("Knowledge search completed", "query", query, "results", len(results))
	return results, nil
}

// Index embeds content and stores it as a new knowledge item
func (s *VectorStore) Index(ctx context.Context, content, source string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyQuery
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("failed to embed content: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.Exec(ctx, `
		INSERT INTO knowledge_items (id, content, source, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, content, source, pgvector.NewVector(embedding), time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to insert knowledge item: %w", err)
	}

	return id, nil
}
