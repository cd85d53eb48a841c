package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dopectx/core/internal/coreerr"
	"github.com/dopectx/core/internal/domain"
)

// entityExistsQuery maps a Link's from_type/to_type to the lookup query
// that confirms the referenced entity is actually present in this
// workspace. Unrecognized entity types have no table to check against
// and are rejected rather than silently accepted.
var entityExistsQuery = map[string]string{
	"decision":    `SELECT 1 FROM decisions WHERE workspace_id = ? AND id = ?`,
	"progress":    `SELECT 1 FROM progress_entries WHERE workspace_id = ? AND id = ?`,
	"pattern":     `SELECT 1 FROM system_patterns WHERE workspace_id = ? AND key = ?`,
	"custom_data": `SELECT 1 FROM custom_data WHERE workspace_id = ? AND key = ?`,
	"glossary":    `SELECT 1 FROM glossary WHERE workspace_id = ? AND term = ?`,
}

func (s *Store) entityExists(ctx context.Context, workspaceID, entityType, id string) (bool, error) {
	query, ok := entityExistsQuery[entityType]
	if !ok {
		return false, nil
	}
	var dummy int
	err := s.db.QueryRowContext(ctx, query, workspaceID, id).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check entity existence: %w", err)
	}
	return true, nil
}

// CreateLink inserts a typed, directed edge between two entities,
// rejecting self-loops and edges whose endpoints don't exist in this
// workspace.
func (s *Store) CreateLink(ctx context.Context, l domain.Link) (domain.Link, error) {
	if l.FromType == l.ToType && l.FromID == l.ToID {
		return domain.Link{}, coreerr.New(coreerr.KindValidationError, "a link cannot connect an entity to itself")
	}

	fromExists, err := s.entityExists(ctx, l.WorkspaceID, l.FromType, l.FromID)
	if err != nil {
		return domain.Link{}, err
	}
	if !fromExists {
		return domain.Link{}, coreerr.New(coreerr.KindValidationError,
			fmt.Sprintf("link source %s %q does not exist in this workspace", l.FromType, l.FromID))
	}
	toExists, err := s.entityExists(ctx, l.WorkspaceID, l.ToType, l.ToID)
	if err != nil {
		return domain.Link{}, err
	}
	if !toExists {
		return domain.Link{}, coreerr.New(coreerr.KindValidationError,
			fmt.Sprintf("link target %s %q does not exist in this workspace", l.ToType, l.ToID))
	}

	l.CreatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO links (workspace_id, from_type, from_id, to_type, to_id, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.WorkspaceID, l.FromType, l.FromID, l.ToType, l.ToID, l.Kind, l.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.Link{}, fmt.Errorf("insert link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Link{}, fmt.Errorf("read link id: %w", err)
	}
	l.ID = id
	return l, nil
}

// LinksFrom returns every outgoing link from a given entity.
func (s *Store) LinksFrom(ctx context.Context, workspaceID, fromType, fromID string) ([]domain.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, from_type, from_id, to_type, to_id, kind, created_at
		FROM links WHERE workspace_id = ? AND from_type = ? AND from_id = ?`,
		workspaceID, fromType, fromID)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var out []domain.Link
	for rows.Next() {
		var l domain.Link
		var createdAt string
		if err := rows.Scan(&l.ID, &l.WorkspaceID, &l.FromType, &l.FromID, &l.ToType, &l.ToID, &l.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}
