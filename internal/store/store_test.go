package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/coreerr"
	"github.com/dopectx/core/internal/domain"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.StoreConfig{RootDir: dir, BusyTimeoutMS: 2000}
	s, err := Open(context.Background(), cfg, "ws-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndListDecisions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	d, err := s.RecordDecision(ctx, domain.Decision{
		WorkspaceID: "ws-test",
		Summary:     "use sqlite for storage",
		Rationale:   "keeps the deployment single-binary",
		Tags:        []string{"storage", "architecture"},
	})
	require.NoError(t, err)
	assert.NotZero(t, d.ID)

	list, err := s.ListDecisions(ctx, "ws-test", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "use sqlite for storage", list[0].Summary)
}

func TestSearchDecisionsFTS(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.RecordDecision(ctx, domain.Decision{WorkspaceID: "ws-test", Summary: "adopt circuit breakers for backend calls"})
	require.NoError(t, err)
	_, err = s.RecordDecision(ctx, domain.Decision{WorkspaceID: "ws-test", Summary: "switch logging to zap"})
	require.NoError(t, err)

	results, err := s.SearchDecisionsFTS(ctx, "ws-test", "circuit", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Summary, "circuit breakers")
}

func TestProgressLegalTransitions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	e, err := s.CreateProgressEntry(ctx, domain.ProgressEntry{ID: "task-1", WorkspaceID: "ws-test", Title: "write migrations"})
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressTODO, e.Status)

	e, err = s.TransitionProgress(ctx, "ws-test", "task-1", domain.ProgressInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressInProgress, e.Status)

	e, err = s.TransitionProgress(ctx, "ws-test", "task-1", domain.ProgressBlocked)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressBlocked, e.Status)

	e, err = s.TransitionProgress(ctx, "ws-test", "task-1", domain.ProgressInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressInProgress, e.Status)

	e, err = s.TransitionProgress(ctx, "ws-test", "task-1", domain.ProgressDone)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressDone, e.Status)
}

func TestProgressTransitionsToAndFromBlockedViaTODO(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProgressEntry(ctx, domain.ProgressEntry{ID: "task-blocked", WorkspaceID: "ws-test", Title: "wait on a dependency"})
	require.NoError(t, err)

	e, err := s.TransitionProgress(ctx, "ws-test", "task-blocked", domain.ProgressBlocked)
	require.NoError(t, err, "TODO -> BLOCKED must be legal")
	assert.Equal(t, domain.ProgressBlocked, e.Status)

	e, err = s.TransitionProgress(ctx, "ws-test", "task-blocked", domain.ProgressTODO)
	require.NoError(t, err, "BLOCKED -> TODO must be legal")
	assert.Equal(t, domain.ProgressTODO, e.Status)

	e, err = s.TransitionProgress(ctx, "ws-test", "task-blocked", domain.ProgressInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressInProgress, e.Status)

	e, err = s.TransitionProgress(ctx, "ws-test", "task-blocked", domain.ProgressTODO)
	require.NoError(t, err, "IN_PROGRESS -> TODO must be legal")
	assert.Equal(t, domain.ProgressTODO, e.Status)
}

func TestProgressIllegalTransitionRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProgressEntry(ctx, domain.ProgressEntry{ID: "task-2", WorkspaceID: "ws-test", Title: "ship release"})
	require.NoError(t, err)

	_, err = s.TransitionProgress(ctx, "ws-test", "task-2", domain.ProgressDone)
	require.Error(t, err)

	var coreErr *coreerr.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, coreerr.KindIllegalTransition, coreErr.Kind)
}

func TestActiveContextMergePatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ac, err := s.PatchActiveContext(ctx, "ws-test", map[string]any{"focus": "auth rewrite", "branch": "main"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ac.Version)
	assert.Equal(t, "auth rewrite", ac.Data["focus"])

	ac, err = s.PatchActiveContext(ctx, "ws-test", map[string]any{"branch": nil, "focus": "auth rewrite v2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ac.Version)
	assert.Equal(t, "auth rewrite v2", ac.Data["focus"])
	_, hasBranch := ac.Data["branch"]
	assert.False(t, hasBranch)
}

func TestActiveContextPatchDeepMergesNestedMapOneLevel(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ac, err := s.PatchActiveContext(ctx, "ws-test", map[string]any{
		"git_state": map[string]any{"branch": "main", "dirty": true},
	})
	require.NoError(t, err)
	gitState, ok := ac.Data["git_state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "main", gitState["branch"])
	assert.Equal(t, true, gitState["dirty"])

	ac, err = s.PatchActiveContext(ctx, "ws-test", map[string]any{
		"git_state": map[string]any{"dirty": false},
	})
	require.NoError(t, err)
	gitState, ok = ac.Data["git_state"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "main", gitState["branch"], "sibling key must survive a nested patch")
	assert.Equal(t, false, gitState["dirty"])
}

func TestActiveContextEmptyWhenMissing(t *testing.T) {
	s := setupTestStore(t)
	ac, err := s.GetActiveContext(context.Background(), "ws-unknown")
	require.NoError(t, err)
	assert.Equal(t, "ws-unknown", ac.WorkspaceID)
	assert.Empty(t, ac.Data)
}

func TestCreateLinkRejectsSelfLoop(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	d, err := s.RecordDecision(ctx, domain.Decision{WorkspaceID: "ws-test", Summary: "pick a storage engine"})
	require.NoError(t, err)
	decisionID := fmt.Sprintf("%d", d.ID)

	_, err = s.CreateLink(ctx, domain.Link{
		WorkspaceID: "ws-test",
		FromType:    "decision", FromID: decisionID,
		ToType: "decision", ToID: decisionID,
		Kind: domain.LinkRelatedTo,
	})
	require.Error(t, err)

	var coreErr *coreerr.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, coreerr.KindValidationError, coreErr.Kind)
}

func TestCreateLinkRejectsDanglingEndpoint(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	d, err := s.RecordDecision(ctx, domain.Decision{WorkspaceID: "ws-test", Summary: "pick a storage engine"})
	require.NoError(t, err)
	decisionID := fmt.Sprintf("%d", d.ID)

	_, err = s.CreateLink(ctx, domain.Link{
		WorkspaceID: "ws-test",
		FromType:    "decision", FromID: decisionID,
		ToType: "progress", ToID: "does-not-exist",
		Kind: domain.LinkImplements,
	})
	require.Error(t, err)

	var coreErr *coreerr.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, coreerr.KindValidationError, coreErr.Kind)
}

func TestCreateLinkAndListFrom(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	d, err := s.RecordDecision(ctx, domain.Decision{WorkspaceID: "ws-test", Summary: "pick a storage engine"})
	require.NoError(t, err)
	decisionID := fmt.Sprintf("%d", d.ID)

	_, err = s.CreateProgressEntry(ctx, domain.ProgressEntry{ID: "task-1", WorkspaceID: "ws-test", Title: "write migrations"})
	require.NoError(t, err)

	l, err := s.CreateLink(ctx, domain.Link{
		WorkspaceID: "ws-test",
		FromType:    "decision", FromID: decisionID,
		ToType: "progress", ToID: "task-1",
		Kind: domain.LinkImplements,
	})
	require.NoError(t, err)
	assert.NotZero(t, l.ID)

	links, err := s.LinksFrom(ctx, "ws-test", "decision", decisionID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, domain.LinkImplements, links[0].Kind)
}

func TestSemanticSearchRanksCloserMatchHigher(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	closer, err := s.RecordDecision(ctx, domain.Decision{WorkspaceID: "ws-test", Summary: "migrate database driver to pure go sqlite"})
	require.NoError(t, err)
	_, err = s.RecordDecision(ctx, domain.Decision{WorkspaceID: "ws-test", Summary: "rename the cli binary"})
	require.NoError(t, err)

	results, err := s.SearchSemantic(ctx, "ws-test", "database driver migration", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "decision", results[0].EntityType)
	assert.Equal(t, fmt.Sprintf("%d", closer.ID), results[0].EntityID)
}

func TestUpsertSystemPatternOverwritesOnSameKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertSystemPattern(ctx, domain.SystemPattern{WorkspaceID: "ws-test", Key: "auth", Description: "jwt in header"})
	require.NoError(t, err)
	_, err = s.UpsertSystemPattern(ctx, domain.SystemPattern{WorkspaceID: "ws-test", Key: "auth", Description: "jwt in cookie"})
	require.NoError(t, err)

	patterns, err := s.ListSystemPatterns(ctx, "ws-test")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "jwt in cookie", patterns[0].Description)
}

func TestRecentActivityMergesDecisionsAndProgress(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.RecordDecision(ctx, domain.Decision{WorkspaceID: "ws-test", Summary: "pick storage engine"})
	require.NoError(t, err)
	_, err = s.CreateProgressEntry(ctx, domain.ProgressEntry{ID: "task-3", WorkspaceID: "ws-test", Title: "write migrations"})
	require.NoError(t, err)

	activity, err := s.RecentActivity(ctx, "ws-test", 10)
	require.NoError(t, err)
	assert.Len(t, activity, 2)
}
