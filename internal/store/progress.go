package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dopectx/core/internal/coreerr"
	"github.com/dopectx/core/internal/domain"
)

// legalTransitions enumerates the progress DAG's allowed edges: any
// non-terminal status can move to BLOCKED or CANCELLED; TODO can move
// to IN_PROGRESS; IN_PROGRESS can additionally move to DONE or back to
// TODO; BLOCKED can additionally move to TODO or IN_PROGRESS once
// unblocked. DONE and CANCELLED are terminal.
var legalTransitions = map[domain.ProgressStatus][]domain.ProgressStatus{
	domain.ProgressTODO:       {domain.ProgressInProgress, domain.ProgressBlocked, domain.ProgressCancelled},
	domain.ProgressInProgress: {domain.ProgressTODO, domain.ProgressBlocked, domain.ProgressDone, domain.ProgressCancelled},
	domain.ProgressBlocked:    {domain.ProgressTODO, domain.ProgressInProgress, domain.ProgressCancelled},
	domain.ProgressDone:       {},
	domain.ProgressCancelled:  {},
}

func isLegalTransition(from, to domain.ProgressStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CreateProgressEntry inserts a new progress entry in TODO status.
func (s *Store) CreateProgressEntry(ctx context.Context, e domain.ProgressEntry) (domain.ProgressEntry, error) {
	now := time.Now()
	e.Status = domain.ProgressTODO
	e.CreatedAt, e.UpdatedAt = now, now

	blockedByJSON, err := json.Marshal(e.BlockedBy)
	if err != nil {
		return domain.ProgressEntry{}, fmt.Errorf("marshal blocked_by: %w", err)
	}
	breakPointsJSON, err := json.Marshal(e.BreakPoints)
	if err != nil {
		return domain.ProgressEntry{}, fmt.Errorf("marshal break_points: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress_entries (
			id, workspace_id, title, status, parent_id, blocked_by,
			complexity_score, estimated_minutes, energy_required, cognitive_load, break_points,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkspaceID, e.Title, e.Status, e.ParentID, string(blockedByJSON),
		e.ComplexityScore, e.EstimatedMinutes, string(e.EnergyRequired), e.CognitiveLoad, string(breakPointsJSON),
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.ProgressEntry{}, fmt.Errorf("insert progress entry: %w", err)
	}
	return e, nil
}

// TransitionProgress moves a progress entry to a new status, rejecting
// any edge not present in the DAG.
func (s *Store) TransitionProgress(ctx context.Context, workspaceID, id string, to domain.ProgressStatus) (domain.ProgressEntry, error) {
	entry, err := s.GetProgressEntry(ctx, workspaceID, id)
	if err != nil {
		return domain.ProgressEntry{}, err
	}
	if !isLegalTransition(entry.Status, to) {
		return domain.ProgressEntry{}, coreerr.New(coreerr.KindIllegalTransition,
			fmt.Sprintf("cannot move progress entry %q from %s to %s", id, entry.Status, to)).
			WithCorrelation("", "", workspaceID)
	}

	entry.Status = to
	entry.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE progress_entries SET status = ?, updated_at = ? WHERE workspace_id = ? AND id = ?`,
		entry.Status, entry.UpdatedAt.UTC().Format(time.RFC3339Nano), workspaceID, id)
	if err != nil {
		return domain.ProgressEntry{}, fmt.Errorf("update progress entry: %w", err)
	}
	return entry, nil
}

const progressEntryColumns = `id, workspace_id, title, status, parent_id, blocked_by,
	complexity_score, estimated_minutes, energy_required, cognitive_load, break_points,
	created_at, updated_at`

// scanProgressEntry scans one progress_entries row in the column order
// of progressEntryColumns.
func scanProgressEntry(row interface {
	Scan(dest ...any) error
}) (domain.ProgressEntry, error) {
	var e domain.ProgressEntry
	var blockedByJSON, breakPointsJSON, energyRequired, createdAt, updatedAt string
	err := row.Scan(&e.ID, &e.WorkspaceID, &e.Title, &e.Status, &e.ParentID, &blockedByJSON,
		&e.ComplexityScore, &e.EstimatedMinutes, &energyRequired, &e.CognitiveLoad, &breakPointsJSON,
		&createdAt, &updatedAt)
	if err != nil {
		return domain.ProgressEntry{}, err
	}
	_ = json.Unmarshal([]byte(blockedByJSON), &e.BlockedBy)
	_ = json.Unmarshal([]byte(breakPointsJSON), &e.BreakPoints)
	e.EnergyRequired = domain.EnergyLevel(energyRequired)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return e, nil
}

// GetProgressEntry fetches one progress entry by ID.
func (s *Store) GetProgressEntry(ctx context.Context, workspaceID, id string) (domain.ProgressEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+progressEntryColumns+` FROM progress_entries WHERE workspace_id = ? AND id = ?`, workspaceID, id)
	e, err := scanProgressEntry(row)
	if err == sql.ErrNoRows {
		return domain.ProgressEntry{}, coreerr.New(coreerr.KindValidationError,
			fmt.Sprintf("progress entry %q not found", id)).WithCorrelation("", "", workspaceID)
	}
	if err != nil {
		return domain.ProgressEntry{}, fmt.Errorf("query progress entry: %w", err)
	}
	return e, nil
}

// ListProgressEntries returns all progress entries for a workspace,
// optionally filtered by status.
func (s *Store) ListProgressEntries(ctx context.Context, workspaceID string, status domain.ProgressStatus) ([]domain.ProgressEntry, error) {
	query := `SELECT ` + progressEntryColumns + ` FROM progress_entries WHERE workspace_id = ?`
	args := []any{workspaceID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query progress entries: %w", err)
	}
	defer rows.Close()

	var out []domain.ProgressEntry
	for rows.Next() {
		e, err := scanProgressEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
