package knowledge

import (
	"context"
	"fmt"
)

// Schema creates the knowledge table. The embedding width matches nomic-embed-text.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_items (
	id         UUID PRIMARY KEY,
	content    TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	embedding  vector(768) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS knowledge_items_embedding_idx
	ON knowledge_items USING hnsw (embedding vector_cosine_ops);
`

// EnsureSchema creates the knowledge table if it does not exist
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create knowledge schema: %w", err)
	}
	return nil
}
