package main

import (
	"context"
	"fmt"

	"github.com/dopectx/core/internal/app"
	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/syncindex"
)

// boot loads configuration and wires a full App rooted at the resolved
// workspace directory. Every subcommand calls this once, uses the
// result, then closes it.
func boot(ctx context.Context) (*app.App, string, error) {
	dir, err := resolveWorkspaceDir()
	if err != nil {
		return nil, "", err
	}

	cfg := config.DefaultConfig()
	if configFlag != "" {
		loaded, err := config.Load(configFlag)
		if err != nil {
			return nil, "", fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	workspaceID := syncindex.WorkspaceHash(dir)
	a, err := app.New(ctx, cfg, workspaceID, dir)
	if err != nil {
		return nil, "", fmt.Errorf("boot app: %w", err)
	}
	return a, workspaceID, nil
}
