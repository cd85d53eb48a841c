package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dopectx/core/internal/domain"
)

// GetActiveContext returns the active context singleton for a
// workspace, creating an empty one if it doesn't exist yet.
func (s *Store) GetActiveContext(ctx context.Context, workspaceID string) (domain.ActiveContext, error) {
	ac, err := s.getActiveContextTx(ctx, s.db, workspaceID)
	if err == sql.ErrNoRows {
		return domain.ActiveContext{WorkspaceID: workspaceID, Data: map[string]any{}}, nil
	}
	return ac, err
}

func (s *Store) getActiveContextTx(ctx context.Context, q queryer, workspaceID string) (domain.ActiveContext, error) {
	var ac domain.ActiveContext
	var dataJSON, updatedAt string
	err := q.QueryRowContext(ctx,
		`SELECT workspace_id, data, version, updated_at FROM active_context WHERE workspace_id = ?`, workspaceID).
		Scan(&ac.WorkspaceID, &dataJSON, &ac.Version, &updatedAt)
	if err != nil {
		return domain.ActiveContext{}, err
	}
	_ = json.Unmarshal([]byte(dataJSON), &ac.Data)
	ac.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return ac, nil
}

// queryer is the subset of *sql.DB / *sql.Tx this package needs, so
// helpers can run either standalone or inside a transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PatchActiveContext atomically applies a one-level-deep merge patch:
// each top-level key in patch replaces or adds a key in the stored
// data, except that a map value merges into an existing map at that key
// (its keys replace or add nested keys, and a nil one deletes it); a
// nil top-level value deletes the key. The whole
// read-modify-write happens inside one transaction so concurrent
// session.save calls never interleave and silently drop a patch.
func (s *Store) PatchActiveContext(ctx context.Context, workspaceID string, patch map[string]any) (domain.ActiveContext, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActiveContext{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getActiveContextTx(ctx, tx, workspaceID)
	if err != nil && err != sql.ErrNoRows {
		return domain.ActiveContext{}, fmt.Errorf("read active context: %w", err)
	}
	if err == sql.ErrNoRows {
		current = domain.ActiveContext{WorkspaceID: workspaceID, Data: map[string]any{}}
	}
	if current.Data == nil {
		current.Data = map[string]any{}
	}

	for k, v := range patch {
		if v == nil {
			delete(current.Data, k)
			continue
		}
		incomingNested, incomingIsMap := v.(map[string]any)
		existingNested, existingIsMap := current.Data[k].(map[string]any)
		if incomingIsMap && existingIsMap {
			merged := make(map[string]any, len(existingNested)+len(incomingNested))
			for nk, nv := range existingNested {
				merged[nk] = nv
			}
			for nk, nv := range incomingNested {
				if nv == nil {
					delete(merged, nk)
					continue
				}
				merged[nk] = nv
			}
			current.Data[k] = merged
			continue
		}
		current.Data[k] = v
	}
	current.Version++
	current.UpdatedAt = time.Now()

	dataJSON, err := json.Marshal(current.Data)
	if err != nil {
		return domain.ActiveContext{}, fmt.Errorf("marshal active context data: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_context (workspace_id, data, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`,
		workspaceID, string(dataJSON), current.Version, current.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.ActiveContext{}, fmt.Errorf("upsert active context: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ActiveContext{}, fmt.Errorf("commit active context patch: %w", err)
	}
	return current, nil
}
