package roleconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fleetforge/conductor/pkg/model"
)

const sample = `{
	"manager": {
		"role": "manager",
		"system_prompt": "You decompose requests.",
		"model_endpoints": [{"model": "claude-sonnet", "endpoint": "https://api.anthropic.com", "provider": "anthropic"}],
		"allowed_tools": ["assign_task", "assign_tasks"]
	},
	"developer": {
		"role": "developer",
		"system_prompt": "You write code.",
		"model_endpoints": [
			{"model": "gpt-4", "endpoint": "https://api.openai.com", "provider": "openai"},
			{"model": "claude-haiku", "endpoint": "https://api.anthropic.com", "provider": "anthropic"}
		],
		"allowed_tools": ["read_file", "write_file", "edit_file"]
	}
}`

func TestLoadParsesRolesAndEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.json")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	roles, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr, ok := roles[model.RoleManager]
	if !ok {
		t.Fatal("expected a manager role")
	}
	if mgr.Endpoint.Model != "claude-sonnet" {
		t.Fatalf("unexpected manager endpoint: %+v", mgr.Endpoint)
	}

	dev, ok := roles[model.RoleDevelop]
	if !ok {
		t.Fatal("expected a developer role")
	}
	if len(dev.Endpoints) != 2 {
		t.Fatalf("expected 2 failover endpoints for developer, got %d", len(dev.Endpoints))
	}
}

func TestLoadRejectsRoleWithNoEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.json")
	if err := os.WriteFile(path, []byte(`{"manager": {"role": "manager", "system_prompt": "x", "model_endpoints": []}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a role with no model_endpoints")
	}
}

func TestLoadErrorsOnMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
