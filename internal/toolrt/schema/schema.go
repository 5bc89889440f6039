// Package schema holds the JSON-schema descriptors for every tool
// conductor offers a model, compiled once at startup and validated with
// santhosh-tekuri/jsonschema (spec.md §4.6, "Tool definitions").
package schema

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Raw is the literal JSON schema text for each tool, keyed by tool name.
var Raw = map[string]string{
	"read_file": `{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"offset": {"type": "integer", "minimum": 0},
			"max_bytes": {"type": "integer", "minimum": 0}
		},
		"required": ["path"]
	}`,
	"edit_file": `{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"patch": {"type": "string"}
		},
		"required": ["path", "patch"]
	}`,
	"write_file": `{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["path", "content"]
	}`,
	"run_python": `{
		"type": "object",
		"properties": {
			"code": {"type": "string"},
			"timeout_seconds": {"type": "integer", "minimum": 1}
		},
		"required": ["code"]
	}`,
	"run_tests": `{
		"type": "object",
		"properties": {
			"path": {"type": "string"}
		}
	}`,
	"git": `{
		"type": "object",
		"properties": {
			"args": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["args"]
	}`,
	"package_manager": `{
		"type": "object",
		"properties": {
			"manager": {"type": "string", "enum": ["pip", "npm", "go"]},
			"args": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["manager", "args"]
	}`,
	"assign_task": `{
		"type": "object",
		"properties": {
			"role": {"type": "string"},
			"description": {"type": "string"},
			"depends_on": {"type": "array", "items": {"type": "string"}},
			"sequence": {"type": "integer", "description": "explicit dispatch bucket; inferred from depends_on when omitted"}
		},
		"required": ["role", "description"]
	}`,
	"assign_tasks": `{
		"type": "object",
		"properties": {
			"assignments": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"role": {"type": "string"},
						"description": {"type": "string"},
						"depends_on": {"type": "array", "items": {"type": "string"}},
						"sequence": {"type": "integer"}
					},
					"required": ["role", "description"]
				}
			}
		},
		"required": ["assignments"]
	}`,
	"raise_callback": `{
		"type": "object",
		"properties": {
			"assignment_id": {"type": "string"},
			"summary": {"type": "string"},
			"success": {"type": "boolean"}
		},
		"required": ["assignment_id", "summary", "success"]
	}`,
}

// Compiled holds every tool's validator, built once at package init.
var Compiled = map[string]*jsonschema.Schema{}

func init() {
	compiler := jsonschema.NewCompiler()
	for name, raw := range Raw {
		url := "schema://" + name
		if err := compiler.AddResource(url, bytes.NewReader([]byte(raw))); err != nil {
			panic(fmt.Sprintf("toolrt/schema: invalid schema for %s: %v", name, err))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("toolrt/schema: failed to compile schema for %s: %v", name, err))
		}
		Compiled[name] = schema
	}
}

// Validate checks args (already decoded into a generic any via
// encoding/json) against tool's compiled schema.
func Validate(tool string, args any) error {
	s, ok := Compiled[tool]
	if !ok {
		return fmt.Errorf("no schema registered for tool %q", tool)
	}
	return s.Validate(args)
}
