package toolrt

import (
	"encoding/json"
	"fmt"
)

// allowedGitSubcommands is the set of git operations an agent may invoke.
// Anything that rewrites history or touches remotes is excluded: those are
// operator actions, not something an agent decides on its own.
var allowedGitSubcommands = map[string]bool{
	"status": true, "diff": true, "log": true, "add": true,
	"commit": true, "branch": true, "show": true,
}

type gitArgs struct {
	Args []string `json:"args"`
}

// NewGitTool wraps the real git binary, confined to root and restricted to
// a safe subcommand allow-list. The git binary itself is an external
// collaborator conductor does not reimplement.
func NewGitTool(root string) *ExecTool {
	return &ExecTool{
		name:   "git",
		schema: "git",
		root:   root,
		argv: func(raw json.RawMessage) ([]string, error) {
			var args gitArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
			if len(args.Args) == 0 || !allowedGitSubcommands[args.Args[0]] {
				return nil, fmt.Errorf("git subcommand %q is not permitted", firstOr(args.Args, "<none>"))
			}
			return append([]string{"git"}, args.Args...), nil
		},
	}
}

var allowedPackageManagers = map[string]string{
	"pip": "pip",
	"npm": "npm",
	"go":  "go",
}

type packageArgs struct {
	Manager string   `json:"manager"`
	Args    []string `json:"args"`
}

// NewPackageManagerTool wraps pip/npm/go directly, confined to root. The
// concrete package-manager binaries are out of scope per spec.md's
// external-collaborator framing: conductor invokes them, it does not
// reimplement dependency resolution.
func NewPackageManagerTool(root string) *ExecTool {
	return &ExecTool{
		name:   "package_manager",
		schema: "package_manager",
		root:   root,
		argv: func(raw json.RawMessage) ([]string, error) {
			var args packageArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
			bin, ok := allowedPackageManagers[args.Manager]
			if !ok {
				return nil, fmt.Errorf("unsupported package manager %q", args.Manager)
			}
			return append([]string{bin}, args.Args...), nil
		},
	}
}

func firstOr(s []string, fallback string) string {
	if len(s) == 0 {
		return fallback
	}
	return s[0]
}
