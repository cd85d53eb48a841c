package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ActivityEntry is one item in a recent-activity summary: either a
// decision or a progress status change, ordered newest first.
type ActivityEntry struct {
	Kind      string    `json:"kind"` // "decision" | "progress"
	Summary   string    `json:"summary"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecentActivity merges the most recent decisions and progress entries
// for a workspace into a single newest-first timeline, capped at limit
// ("what have I been doing" recap used by session load).
func (s *Store) RecentActivity(ctx context.Context, workspaceID string, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	decisionRows, err := s.db.QueryContext(ctx,
		`SELECT summary, created_at FROM decisions WHERE workspace_id = ? ORDER BY id DESC LIMIT ?`,
		workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent decisions: %w", err)
	}
	var entries []ActivityEntry
	for decisionRows.Next() {
		var summary, createdAt string
		if err := decisionRows.Scan(&summary, &createdAt); err != nil {
			_ = decisionRows.Close()
			return nil, fmt.Errorf("scan recent decision: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, ActivityEntry{Kind: "decision", Summary: summary, Timestamp: ts})
	}
	if err := decisionRows.Err(); err != nil {
		_ = decisionRows.Close()
		return nil, err
	}
	_ = decisionRows.Close()

	progressRows, err := s.db.QueryContext(ctx,
		`SELECT title, status, updated_at FROM progress_entries WHERE workspace_id = ? ORDER BY updated_at DESC LIMIT ?`,
		workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent progress: %w", err)
	}
	defer progressRows.Close()
	for progressRows.Next() {
		var title, status, updatedAt string
		if err := progressRows.Scan(&title, &status, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan recent progress: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, updatedAt)
		entries = append(entries, ActivityEntry{Kind: "progress", Summary: title, Status: status, Timestamp: ts})
	}
	if err := progressRows.Err(); err != nil {
		return nil, err
	}

	sortEntriesDesc(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func sortEntriesDesc(entries []ActivityEntry) {
	// Insertion sort: both source queries are already individually
	// sorted and limit is small, so this stays cheap in practice.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Timestamp.After(entries[j-1].Timestamp); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// MarshalActivity is a convenience for CLI/HTTP layers that need the
// timeline as compact JSON.
func MarshalActivity(entries []ActivityEntry) ([]byte, error) {
	return json.Marshal(entries)
}
