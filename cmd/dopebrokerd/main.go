// Command dopebrokerd runs the HTTP tool-invocation endpoint: one
// request envelope per call routed through the Meta-Broker, backend
// registry, and attention engine for a single workspace.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dopectx/core/internal/app"
	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/logging"
	"github.com/dopectx/core/internal/syncindex"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dopebrokerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		addr       string
		workspace  string
		configPath string
	)
	flag.StringVar(&addr, "addr", ":8780", "listen address")
	flag.StringVar(&workspace, "workspace", "", "workspace directory (default: current directory)")
	flag.StringVar(&configPath, "config", "", "path to a config YAML file")
	flag.Parse()

	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		workspace = wd
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	workspaceID := syncindex.WorkspaceHash(workspace)
	a, err := app.New(ctx, cfg, workspaceID, workspace)
	if err != nil {
		return fmt.Errorf("boot app: %w", err)
	}
	defer a.Close()

	log := logging.Get(logging.CategoryHTTP)
	handler := newRouter(a, workspaceID, log)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", addr, "workspace", workspace)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
