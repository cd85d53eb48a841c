package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/dopectx/core/internal/coreerr"
)

// SemanticResult is one scored hit from SearchSemantic.
type SemanticResult struct {
	EntityType string
	EntityID   string
	Score      float64
}

// indexEmbedding computes and upserts the deterministic local embedding
// for an entity's text. There is no external
// model dependency: embedText is a fixed hashing-trick projection.
func (s *Store) indexEmbedding(ctx context.Context, entityType, entityID, workspaceID, text string) error {
	vec := embedText(text)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (entity_type, entity_id, workspace_id, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET vector = excluded.vector, workspace_id = excluded.workspace_id`,
		entityType, entityID, workspaceID, encodeVector(vec))
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// SearchSemantic ranks indexed entities in a workspace by cosine
// similarity to query's embedding. It scans embeddings in Go rather
// than delegating to a vector index: at per-workspace scale (the
// expected few thousand entities) a brute-force scan is fast
// enough, and it avoids requiring a loadable SQLite extension that the
// pure-Go modernc.org/sqlite driver cannot load (see DESIGN.md).
func (s *Store) SearchSemantic(ctx context.Context, workspaceID, query string, limit int) ([]SemanticResult, error) {
	if limit <= 0 {
		return nil, coreerr.New(coreerr.KindValidationError, "limit must be positive")
	}
	queryVec := embedText(query)

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_type, entity_id, vector FROM embeddings WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("scan embeddings: %w", err)
	}
	defer rows.Close()

	var results []SemanticResult
	for rows.Next() {
		var entityType, entityID string
		var blob []byte
		if err := rows.Scan(&entityType, &entityID, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		score := cosineSimilarity(queryVec, decodeVector(blob))
		results = append(results, SemanticResult{EntityType: entityType, EntityID: entityID, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
