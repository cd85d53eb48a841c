package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dopectx/core/internal/domain"
)

// RecordDecision appends an immutable decision entry and indexes its
// embedding for semantic search. Decisions are never updated or deleted
// once written.
func (s *Store) RecordDecision(ctx context.Context, d domain.Decision) (domain.Decision, error) {
	d.CreatedAt = time.Now()
	tagsJSON, err := json.Marshal(d.Tags)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("marshal tags: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (workspace_id, summary, rationale, tags, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.WorkspaceID, d.Summary, d.Rationale, string(tagsJSON), d.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.Decision{}, fmt.Errorf("insert decision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("read decision id: %w", err)
	}
	d.ID = id

	if err := s.indexEmbedding(ctx, "decision", fmt.Sprintf("%d", id), d.WorkspaceID, d.Summary+" "+d.Rationale); err != nil {
		return d, fmt.Errorf("index decision embedding: %w", err)
	}
	return d, nil
}

// ListDecisions returns the most recent decisions for a workspace,
// newest first, bounded by limit.
func (s *Store) ListDecisions(ctx context.Context, workspaceID string, limit int) ([]domain.Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, summary, rationale, tags, created_at
		 FROM decisions WHERE workspace_id = ? ORDER BY id DESC LIMIT ?`,
		workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.Decision
	for rows.Next() {
		var d domain.Decision
		var tagsJSON, createdAt string
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Summary, &d.Rationale, &tagsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		_ = json.Unmarshal([]byte(tagsJSON), &d.Tags)
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SearchDecisionsFTS performs a full-text search over decision
// summary/rationale/tags using SQLite FTS5.
func (s *Store) SearchDecisionsFTS(ctx context.Context, workspaceID, query string, limit int) ([]domain.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.workspace_id, d.summary, d.rationale, d.tags, d.created_at
		FROM decisions_fts f
		JOIN decisions d ON d.id = f.rowid
		WHERE f.decisions_fts MATCH ? AND d.workspace_id = ?
		ORDER BY rank LIMIT ?`, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.Decision
	for rows.Next() {
		var d domain.Decision
		var tagsJSON, createdAt string
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.Summary, &d.Rationale, &tagsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		_ = json.Unmarshal([]byte(tagsJSON), &d.Tags)
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}
