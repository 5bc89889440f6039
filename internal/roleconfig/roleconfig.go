// Package roleconfig loads conductor's roles configuration: a JSON map of
// role name to prompt, model endpoints, and tool allow-list (spec.md §6).
// There is no hot-reload and no separate validation framework — the file is
// read once per process and decoded straight into pkg/model's types.
package roleconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fleetforge/conductor/pkg/model"
)

// wireEndpoint mirrors the roles-config JSON's model_endpoints entries,
// which name "model"/"endpoint" rather than model.ModelEndpoint's own field
// names.
type wireEndpoint struct {
	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// wireRole mirrors one entry of the roles-config JSON object.
type wireRole struct {
	Role             string         `json:"role"`
	SystemPrompt     string         `json:"system_prompt"`
	ModelEndpoints   []wireEndpoint `json:"model_endpoints"`
	Temperature      float64        `json:"temperature"`
	MaxTokens        int            `json:"max_tokens"`
	Timeout          int            `json:"timeout"`
	AllowedTools     []string       `json:"allowed_tools,omitempty"`
	DefaultGitBranch string         `json:"default_git_branch,omitempty"`
}

// Load reads and decodes the roles configuration at path into a map keyed
// by model.Role. Roles manager/developer/auditor are expected by default
// assignments but any role name declared in the file is callable (spec.md
// §6).
func Load(path string) (map[model.Role]model.AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.FilesystemError{Path: path, Err: err}
	}

	var raw map[string]wireRole
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode roles config %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("roles config %s declares no roles", path)
	}

	out := make(map[model.Role]model.AgentConfig, len(raw))
	for name, wr := range raw {
		if len(wr.ModelEndpoints) == 0 {
			return nil, fmt.Errorf("role %q declares no model_endpoints", name)
		}

		endpoints := make([]model.ModelEndpoint, len(wr.ModelEndpoints))
		for i, we := range wr.ModelEndpoints {
			endpoints[i] = model.ModelEndpoint{Provider: we.Provider, URL: we.Endpoint, APIKey: we.APIKey, Model: we.Model}
		}

		role := model.Role(name)
		out[role] = model.AgentConfig{
			Role:         role,
			SystemPrompt: wr.SystemPrompt,
			Endpoint:     endpoints[0],
			Endpoints:    endpoints,
			AllowedTools: wr.AllowedTools,
		}
	}
	return out, nil
}
