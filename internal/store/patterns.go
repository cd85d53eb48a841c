package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dopectx/core/internal/domain"
)

// UpsertSystemPattern writes or replaces a keyed architectural note.
func (s *Store) UpsertSystemPattern(ctx context.Context, p domain.SystemPattern) (domain.SystemPattern, error) {
	p.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_patterns (workspace_id, key, description, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, key) DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at`,
		p.WorkspaceID, p.Key, p.Description, p.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.SystemPattern{}, fmt.Errorf("upsert system pattern: %w", err)
	}
	if err := s.indexEmbedding(ctx, "system_pattern", p.WorkspaceID+":"+p.Key, p.WorkspaceID, p.Description); err != nil {
		return p, fmt.Errorf("index system pattern embedding: %w", err)
	}
	return p, nil
}

// ListSystemPatterns returns every pattern recorded for a workspace.
func (s *Store) ListSystemPatterns(ctx context.Context, workspaceID string) ([]domain.SystemPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workspace_id, key, description, updated_at FROM system_patterns WHERE workspace_id = ? ORDER BY key`,
		workspaceID)
	if err != nil {
		return nil, fmt.Errorf("query system patterns: %w", err)
	}
	defer rows.Close()

	var out []domain.SystemPattern
	for rows.Next() {
		var p domain.SystemPattern
		var updatedAt string
		if err := rows.Scan(&p.WorkspaceID, &p.Key, &p.Description, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan system pattern: %w", err)
		}
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertCustomData writes or replaces a free-form keyed record.
func (s *Store) UpsertCustomData(ctx context.Context, d domain.CustomData) (domain.CustomData, error) {
	d.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_data (workspace_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		d.WorkspaceID, d.Key, d.Value, d.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.CustomData{}, fmt.Errorf("upsert custom data: %w", err)
	}
	return d, nil
}

// UpsertGlossaryTerm writes or replaces a project-specific term.
func (s *Store) UpsertGlossaryTerm(ctx context.Context, g domain.GlossaryTerm) (domain.GlossaryTerm, error) {
	g.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO glossary (workspace_id, term, definition, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, term) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		g.WorkspaceID, g.Term, g.Definition, g.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.GlossaryTerm{}, fmt.Errorf("upsert glossary term: %w", err)
	}
	return g, nil
}
