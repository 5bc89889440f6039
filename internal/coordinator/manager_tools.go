package coordinator

import (
	"encoding/json"
	"fmt"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/internal/toolrt/schema"
	"github.com/fleetforge/conductor/pkg/model"
	"github.com/google/uuid"
)

// managerToolDescriptors returns the assign_task/assign_tasks descriptors
// the manager agent sees, sourced from the shared schema so the model-facing
// shape matches what parseAssignments actually decodes.
func managerToolDescriptors() []comms.ToolDescriptor {
	return []comms.ToolDescriptor{
		toolDescriptor("assign_task", "Assign one unit of work to a role."),
		toolDescriptor("assign_tasks", "Assign several units of work at once, in dependency order."),
	}
}

// callbackToolDescriptor returns the raise_callback descriptor offered to
// developer/auditor agents so they can report completion back to the
// manager.
func callbackToolDescriptor() comms.ToolDescriptor {
	return toolDescriptor("raise_callback", "Report the outcome of an assignment back to the manager.")
}

func toolDescriptor(name, description string) comms.ToolDescriptor {
	var schemaMap map[string]any
	_ = json.Unmarshal([]byte(schema.Raw[name]), &schemaMap)
	return comms.ToolDescriptor{Name: name, Description: description, Schema: schemaMap}
}

type assignTaskArgs struct {
	Role        string   `json:"role"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on"`
	// Sequence carries an explicit sequence number when the manager supplied
	// one directly — assign_task('frontdev', 'task', 0) passes it positionally
	// as the third argument. When nil, sequence falls back to dependency-depth
	// inference via sequenceDepth.
	Sequence *int `json:"sequence"`
}

type assignTasksArgs struct {
	Assignments []assignTaskArgs `json:"assignments"`
}

// parseAssignments scans every assistant message for assign_task /
// assign_tasks calls and turns them into model.Assignment values. A manager
// that names an explicit sequence integer (spec.md §4.1's assign_task(role,
// task, sequence) shape, e.g. assign_task('frontdev', 't', 0)) gets that
// number directly; otherwise sequence is derived from dependency depth — an
// assignment with no depends_on is sequence 0, and any assignment depending
// on another sits one sequence after the deepest assignment it depends on
// (spec.md §4.7's "sequence-ordered parallel dispatch").
func parseAssignments(messages []model.Message) ([]model.Assignment, error) {
	var raw []assignTaskArgs
	for _, msg := range messages {
		if msg.Role != "assistant" {
			continue
		}
		for _, call := range msg.ToolCalls {
			switch call.Name {
			case "assign_task":
				var a assignTaskArgs
				if err := json.Unmarshal(call.Arguments, &a); err != nil {
					return nil, fmt.Errorf("decode assign_task: %w", err)
				}
				raw = append(raw, a)
			case "assign_tasks":
				var batch assignTasksArgs
				if err := json.Unmarshal(call.Arguments, &batch); err != nil {
					return nil, fmt.Errorf("decode assign_tasks: %w", err)
				}
				raw = append(raw, batch.Assignments...)
			}
		}
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("manager produced no assign_task/assign_tasks calls")
	}

	assignments := make([]model.Assignment, len(raw))
	ids := make(map[string]string, len(raw))
	for i, a := range raw {
		id := uuid.NewString()
		assignments[i] = model.Assignment{
			ID:          id,
			Role:        model.Role(a.Role),
			Description: a.Description,
			DependsOn:   a.DependsOn,
		}
		ids[a.Description] = id
	}

	for i := range assignments {
		if raw[i].Sequence != nil {
			assignments[i].Sequence = *raw[i].Sequence
			continue
		}
		assignments[i].Sequence = sequenceDepth(assignments, i, map[int]bool{})
	}
	return assignments, nil
}

// sequenceDepth computes the dependency depth of assignments[i], following
// DependsOn descriptions back to the assignments they name. visiting guards
// against a cyclic dependency looping forever; a cycle is treated as depth 0
// for the offending node rather than erroring the whole decomposition.
func sequenceDepth(assignments []model.Assignment, i int, visiting map[int]bool) int {
	if visiting[i] {
		return 0
	}
	visiting[i] = true

	a := assignments[i]
	if len(a.DependsOn) == 0 {
		return 0
	}

	maxDepth := -1
	for _, dep := range a.DependsOn {
		for j, candidate := range assignments {
			if candidate.Description == dep {
				d := sequenceDepth(assignments, j, visiting)
				if d > maxDepth {
					maxDepth = d
				}
			}
		}
	}
	if maxDepth < 0 {
		return 0
	}
	return maxDepth + 1
}

type raiseCallbackArgs struct {
	AssignmentID string `json:"assignment_id"`
	Summary      string `json:"summary"`
	Success      bool   `json:"success"`
}

// parseCallback scans messages for a raise_callback call and returns it as
// a model.Callback, stamping it with assignmentID (the agent's own
// assignment_id argument is advisory; the coordinator is the source of
// truth for which assignment this instance was dispatched against).
func parseCallback(assignmentID string, messages []model.Message) (model.Callback, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != "assistant" {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.Name != "raise_callback" {
				continue
			}
			var a raiseCallbackArgs
			if err := json.Unmarshal(call.Arguments, &a); err != nil {
				return model.Callback{}, fmt.Errorf("decode raise_callback: %w", err)
			}
			return model.Callback{AssignmentID: assignmentID, Summary: a.Summary, Success: a.Success}, nil
		}
	}
	return model.Callback{}, fmt.Errorf("agent finished without raising a callback")
}
