package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/fleetforge/conductor/pkg/model"
)

func TestParseAssignmentsOrdersByDependencyDepth(t *testing.T) {
	base, _ := json.Marshal(assignTaskArgs{Role: "developer", Description: "write the parser"})
	dependent, _ := json.Marshal(assignTaskArgs{Role: "auditor", Description: "review the parser", DependsOn: []string{"write the parser"}})

	messages := []model.Message{
		{Role: "assistant", ToolCalls: []model.ToolCall{
			{ID: "1", Name: "assign_task", Arguments: base},
			{ID: "2", Name: "assign_task", Arguments: dependent},
		}},
	}

	assignments, err := parseAssignments(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}

	var writer, reviewer model.Assignment
	for _, a := range assignments {
		if a.Description == "write the parser" {
			writer = a
		} else {
			reviewer = a
		}
	}
	if writer.Sequence != 0 {
		t.Fatalf("expected the dependency-free assignment at sequence 0, got %d", writer.Sequence)
	}
	if reviewer.Sequence != 1 {
		t.Fatalf("expected the dependent assignment at sequence 1, got %d", reviewer.Sequence)
	}
}

// TestParseAssignmentsHonorsExplicitSequence confirms a manager-supplied
// sequence integer — assign_task('frontdev', 't', 0) — wins over
// dependency-depth inference, matching the canonical {role, task, sequence}
// assignment shape.
func TestParseAssignmentsHonorsExplicitSequence(t *testing.T) {
	nine := 9
	explicit, _ := json.Marshal(assignTaskArgs{Role: "auditor", Description: "final pass", Sequence: &nine})

	messages := []model.Message{
		{Role: "assistant", ToolCalls: []model.ToolCall{
			{ID: "1", Name: "assign_task", Arguments: explicit},
		}},
	}

	assignments, err := parseAssignments(messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assignments) != 1 || assignments[0].Sequence != 9 {
		t.Fatalf("expected the explicit sequence 9 to be honored, got %+v", assignments)
	}
}

func TestParseAssignmentsErrorsWhenManagerCallsNoTool(t *testing.T) {
	messages := []model.Message{{Role: "assistant", Content: "I'll just do it myself."}}
	if _, err := parseAssignments(messages); err == nil {
		t.Fatal("expected an error when the manager never calls assign_task/assign_tasks")
	}
}

func TestParseCallbackFindsMostRecentRaiseCallback(t *testing.T) {
	args, _ := json.Marshal(raiseCallbackArgs{AssignmentID: "ignored-by-caller", Summary: "done", Success: true})
	messages := []model.Message{
		{Role: "assistant", ToolCalls: []model.ToolCall{{ID: "1", Name: "read_file"}}},
		{Role: "assistant", ToolCalls: []model.ToolCall{{ID: "2", Name: "raise_callback", Arguments: args}}},
	}

	cb, err := parseCallback("assignment-123", messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.AssignmentID != "assignment-123" {
		t.Fatalf("expected the coordinator's own assignment ID to win, got %q", cb.AssignmentID)
	}
	if !cb.Success || cb.Summary != "done" {
		t.Fatalf("unexpected callback: %+v", cb)
	}
}

func TestParseCallbackErrorsWithoutRaiseCallback(t *testing.T) {
	messages := []model.Message{{Role: "assistant", Content: "all done"}}
	if _, err := parseCallback("assignment-123", messages); err == nil {
		t.Fatal("expected an error when the agent never raises a callback")
	}
}
