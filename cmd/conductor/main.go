// Command conductor is the entry point for the multi-agent task
// orchestrator (spec.md §6): a single request decomposed by a manager
// agent, dispatched to developer/auditor agents, and verified before
// exiting.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/internal/coordinator"
	"github.com/fleetforge/conductor/internal/obslog"
	"github.com/fleetforge/conductor/internal/roleconfig"
	"github.com/fleetforge/conductor/internal/session"
	"github.com/fleetforge/conductor/internal/toolrt"
)

var (
	replay    bool
	cfgPath   string
	sharedDir string
	repo      string
	verbose   bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conductor <request>",
		Short: "Decompose a request across manager/developer/auditor agents and run it to completion.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}

	home, _ := os.UserHomeDir()
	cmd.Flags().BoolVar(&replay, "replay", false, "replay a prior session's recorded traces instead of issuing live requests")
	cmd.Flags().StringVar(&cfgPath, "config", filepath.Join(home, ".conductor", "roles.json"), "path to the roles configuration JSON file")
	cmd.Flags().StringVar(&sharedDir, "shared-dir", filepath.Join(home, ".conductor", "sessions"), "session-root directory")
	cmd.Flags().StringVar(&repo, "repo", "", "git repository URL or local path to work against")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "raise log verbosity")
	return cmd
}

func run(ctx context.Context, request string) error {
	logger := obslog.New(os.Stdout)

	roles, err := roleconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load roles config: %w", err)
	}

	if err := os.MkdirAll(sharedDir, 0o755); err != nil {
		return fmt.Errorf("create shared dir: %w", err)
	}
	sess, err := session.New(sharedDir)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()
	logger.Info(obslog.SessionOpened, sess.ID, "", map[string]any{"shared_dir": sharedDir, "repo": repo})

	workDir := repo
	if workDir == "" {
		workDir = sess.Dir
	}
	tools := registerTools(workDir, logger)

	var coord *coordinator.Coordinator
	if replay {
		traceDir, rerr := latestTraceDir(sharedDir, sess.ID)
		if rerr != nil {
			return fmt.Errorf("resolve replay trace dir: %w", rerr)
		}
		logger.Info(obslog.SessionReplayed, sess.ID, "", map[string]any{"trace_dir": traceDir})
		coord = coordinator.NewReplay(roles, tools, sess, logger, traceDir)
	} else {
		pool := comms.NewPool(0)
		bus := comms.NewBus(0)
		coord = coordinator.New(roles, pool, bus, tools, sess, logger)
	}

	report, err := coord.Run(ctx, request)
	if err != nil {
		return err
	}

	fmt.Printf("completed %d assignment(s) across %d callback(s); %d file(s) still need audit\n",
		len(report.Assignments), len(report.Callbacks), len(report.Incomplete))
	for _, path := range report.Incomplete {
		fmt.Printf("  unaudited: %s\n", path)
	}
	return nil
}

// registerTools builds the sandboxed tool registry for one run, confined to
// workDir (spec.md §4.4).
func registerTools(workDir string, logger *obslog.Logger) *toolrt.Registry {
	r := toolrt.NewRegistry(logger)
	r.Register(toolrt.NewReadTool(workDir))
	r.Register(toolrt.NewWriteTool(workDir))
	r.Register(toolrt.NewEditTool(workDir))
	r.Register(toolrt.NewRunPythonTool(workDir))
	r.Register(toolrt.NewRunTestsTool(workDir))
	r.Register(toolrt.NewGitTool(workDir))
	r.Register(toolrt.NewPackageManagerTool(workDir))
	return r
}

// latestTraceDir implements latest_session (spec.md §4.1): it selects the
// lexicographically greatest session directory name under sharedDir,
// skipping the just-created session (excludeID) so replay mode doesn't try
// to replay from its own empty trace dir. Session IDs are monotonically
// increasing timestamps (session.New), so the greatest name is always the
// most recent prior session.
func latestTraceDir(sharedDir, excludeID string) (string, error) {
	entries, err := os.ReadDir(sharedDir)
	if err != nil {
		return "", err
	}

	var best string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == excludeID {
			continue
		}
		if e.Name() > best {
			best = e.Name()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no prior session found under %s to replay", sharedDir)
	}
	return filepath.Join(sharedDir, best, "trace"), nil
}
