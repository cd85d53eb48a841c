package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dopectx/core/internal/coreerr"
)

func TestExitCodeForMapsKnownKinds(t *testing.T) {
	cases := []struct {
		kind coreerr.Kind
		want int
	}{
		{coreerr.KindValidationError, 1},
		{coreerr.KindNoBackend, 2},
		{coreerr.KindUnavailable, 2},
		{coreerr.KindBudgetExceeded, 3},
		{coreerr.KindIllegalTransition, 4},
		{coreerr.KindBreakRequired, 5},
	}
	for _, c := range cases {
		err := coreerr.New(c.kind, "boom")
		assert.Equal(t, c.want, exitCodeFor(err), "kind=%s", c.kind)
	}
}

func TestExitCodeForFallsThroughUnmappedKinds(t *testing.T) {
	for _, kind := range []coreerr.Kind{coreerr.KindStorageUnavailable, coreerr.KindCancelled, coreerr.KindInternal} {
		err := coreerr.New(kind, "boom")
		assert.Equal(t, 1, exitCodeFor(err), "kind=%s", kind)
	}
}

func TestExitCodeForNonCoreErrorDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, exitCodeFor(errors.New("plain failure")))
}

func TestResolveWorkspaceDirDefaultsToCurrentDirectory(t *testing.T) {
	orig := workspaceFlag
	workspaceFlag = ""
	defer func() { workspaceFlag = orig }()

	dir, err := resolveWorkspaceDir()
	assert.NoError(t, err)
	assert.NotEmpty(t, dir)
}
