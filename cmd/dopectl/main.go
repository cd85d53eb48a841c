// Command dopectl is the CLI front end for the dopectx core: the
// session.start/save/load/break/resume/end, task.assess/implement, and
// stats command surface, wired as a thin dispatcher over
// internal/session.Service (and the subsystems it composes).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dopectx/core/internal/coreerr"
)

var (
	workspaceFlag string
	configFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "dopectl",
	Short: "dopectx core: ADHD-aware session, task, and attention commands",
	Long: `dopectl drives a dope-context workspace: start/save/load/break/
resume/end a session, assess or implement a task against the current
attention state, and report combined session stats.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "path to a config YAML file (default: built-in defaults)")

	rootCmd.AddCommand(sessionCmd, taskCmd, statsCmd)
}

func resolveWorkspaceDir() (string, error) {
	dir := workspaceFlag
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return dir, nil
	}
	return filepath.Abs(dir)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a CoreError's Kind to the command surface's exit
// codes (0 success, 1 validation error, 2 backend unavailable, 3
// budget exceeded, 4 illegal transition, 5 break required). Kinds
// outside that closed set (StorageUnavailable, Cancelled, Internal) are
// not named there; they fall through to 1, the same as any other
// unmapped failure.
func exitCodeFor(err error) int {
	ce, ok := err.(*coreerr.CoreError)
	if !ok {
		return 1
	}
	switch ce.Kind {
	case coreerr.KindValidationError:
		return 1
	case coreerr.KindNoBackend, coreerr.KindUnavailable:
		return 2
	case coreerr.KindBudgetExceeded:
		return 3
	case coreerr.KindIllegalTransition:
		return 4
	case coreerr.KindBreakRequired:
		return 5
	default:
		return 1
	}
}
