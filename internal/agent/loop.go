package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/internal/obslog"
	"github.com/fleetforge/conductor/pkg/model"
)

// Sender is the subset of *comms.Channel the loop needs: issue one request,
// get back a context carrying the call's correlation ID plus the response.
type Sender interface {
	Send(ctx context.Context, req comms.Request) (context.Context, comms.Response, error)
}

// Executor runs a single tool call and returns its result.
type Executor interface {
	Execute(ctx context.Context, call model.ToolCall) model.ToolResult
}

// Config bounds one loop run (spec.md §4.6), mirroring the teacher's
// LoopConfig shape (MaxIterations/MaxToolCalls caps, trimming controls).
type Config struct {
	MaxIterations   int
	MaxToolCalls    int
	MaxContextTokens int
	KeepFirstUnits  int

	// SignatureWindow is how many recent tool-call signatures the loop
	// remembers to detect a stuck agent repeating itself.
	SignatureWindow int
	// SignatureRepeats is how many times the same signature may recur
	// within the window before the loop gives up.
	SignatureRepeats int
}

// DefaultConfig returns the teacher's defaults (MaxIterations=10,
// MaxTokens=4096-class trimming budget), generalized to conductor's
// per-role configurability.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    10,
		MaxToolCalls:     50,
		MaxContextTokens: 32000,
		KeepFirstUnits:   1,
		SignatureWindow:  6,
		SignatureRepeats: 3,
	}
}

// Loop drives one agent instance's reason-act cycle against its model
// endpoint and tool registry.
type Loop struct {
	cfg      Config
	sender   Sender
	executor Executor
	logger   *obslog.Logger
	agentID  string

	readCache map[string]model.ToolResult
}

// New constructs a Loop for one agent instance.
func New(cfg Config, sender Sender, executor Executor, logger *obslog.Logger, agentID string) *Loop {
	if logger == nil {
		logger = obslog.Default
	}
	return &Loop{cfg: cfg, sender: sender, executor: executor, logger: logger, agentID: agentID, readCache: make(map[string]model.ToolResult)}
}

// Result is the outcome of a completed loop run.
type Result struct {
	FinalText  string
	Messages   []model.Message
	Iterations int
	ToolCalls  int
}

// Run executes the 9-step agentic loop: send, extract tool calls, validate,
// execute (deduping repeat reads), append results, detect repetition, trim
// context, and either continue or finish once the model stops calling
// tools.
func (l *Loop) Run(ctx context.Context, system string, messages []model.Message, tools []comms.ToolDescriptor, model_ string) (Result, error) {
	var signatures []string
	totalToolCalls := 0
	forceTextResponse := false

	for iter := 1; iter <= l.cfg.MaxIterations; iter++ {
		reqTools := tools
		toolChoice := ""
		if forceTextResponse {
			toolChoice = "none"
			reqTools = writeOnlyTools(tools)
		}

		req := comms.Request{Model: model_, System: system, Messages: messages, Tools: reqTools, ToolChoice: toolChoice}
		_, resp, err := l.sender.Send(ctx, req)
		if err != nil {
			return Result{Messages: messages, Iterations: iter}, err
		}

		calls := ExtractToolCalls(resp.ToolCalls, resp.Text)
		if len(calls) == 0 {
			messages = append(messages, model.Message{Role: "assistant", Content: resp.Text})
			return Result{FinalText: resp.Text, Messages: messages, Iterations: iter, ToolCalls: totalToolCalls}, nil
		}

		forceTextResponse = allReadOnly(calls)
		totalToolCalls += len(calls)
		if l.cfg.MaxToolCalls > 0 && totalToolCalls > l.cfg.MaxToolCalls {
			return Result{Messages: messages, Iterations: iter, ToolCalls: totalToolCalls}, &model.LoopStuckError{AgentID: l.agentID, Signature: "max_tool_calls_exceeded"}
		}

		messages = append(messages, model.Message{Role: "assistant", Content: resp.Text, ToolCalls: calls})

		sig := signature(calls)
		signatures = append(signatures, sig)
		if repeated(signatures, l.cfg.SignatureWindow, l.cfg.SignatureRepeats) {
			l.logger.Warn(obslog.AgentStuck, "", l.agentID, map[string]any{"signature": sig, "iteration": iter})
			return Result{Messages: messages, Iterations: iter, ToolCalls: totalToolCalls}, &model.LoopStuckError{AgentID: l.agentID, Signature: sig}
		}

		for _, call := range calls {
			result := l.runTool(ctx, call)
			messages = append(messages, model.Message{Role: "tool", ToolCallID: call.ID, Content: result.Content})
		}

		messages = Trim(messages, l.cfg.MaxContextTokens, l.cfg.KeepFirstUnits)
	}

	return Result{Messages: messages, Iterations: l.cfg.MaxIterations, ToolCalls: totalToolCalls}, &model.LoopStuckError{AgentID: l.agentID, Signature: "max_iterations_exceeded"}
}

// runTool executes call, serving a cached result for a repeated read-only
// call with identical arguments instead of re-executing it (spec.md §4.6,
// cached-read deduplication — a developer agent re-reading the same file
// it just read shouldn't cost another tool round trip).
func (l *Loop) runTool(ctx context.Context, call model.ToolCall) model.ToolResult {
	if isCacheableRead(call.Name) {
		key := call.Name + ":" + string(call.Arguments)
		if cached, ok := l.readCache[key]; ok {
			l.logger.Info(obslog.ToolCompletion, "", l.agentID, map[string]any{"tool": call.Name, "cached": true})
			return cached
		}
		result := l.executor.Execute(ctx, call)
		if !result.IsError {
			l.readCache[key] = result
		}
		return result
	}
	return l.executor.Execute(ctx, call)
}

func isCacheableRead(name string) bool {
	switch name {
	case "read_file", "list_files", "git_status", "git_diff":
		return true
	default:
		return false
	}
}

// allReadOnly reports whether every call in a batch is a read-only tool
// (spec.md §4.6 step 9): an agent that only read files last iteration gets
// forced toward a text response or a write next, instead of being allowed
// to read the same files forever without ever producing the edit its
// assignment needs.
func allReadOnly(calls []model.ToolCall) bool {
	if len(calls) == 0 {
		return false
	}
	for _, c := range calls {
		if !isCacheableRead(c.Name) {
			return false
		}
	}
	return true
}

// writeOnlyTools strips the read-only tools out of the descriptor list
// offered to the model, the tools-narrowing half of forcing a write or a
// text response (spec.md §4.6 step 9) — belt-and-braces alongside
// Request.ToolChoice == "none" for backends (Bedrock) that can't fully
// enforce a literal "none" tool choice on their own.
func writeOnlyTools(tools []comms.ToolDescriptor) []comms.ToolDescriptor {
	out := make([]comms.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		if !isCacheableRead(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// signature hashes a batch of tool calls (name + arguments, ignoring call
// ID) so identical requests across iterations compare equal regardless of
// the ID the model assigned them.
func signature(calls []model.ToolCall) string {
	h := sha256.New()
	for _, c := range calls {
		fmt.Fprintf(h, "%s:%s;", c.Name, c.Arguments)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// repeated reports whether the most recent signature recurs at least
// `repeats` times within the last `window` entries — a sliding-window
// comparison that catches an agent alternating between two or three
// actions just as well as one that repeats a single action.
func repeated(sigs []string, window, repeats int) bool {
	if window <= 0 || repeats <= 0 || len(sigs) == 0 {
		return false
	}
	start := 0
	if len(sigs) > window {
		start = len(sigs) - window
	}
	recent := sigs[start:]
	last := sigs[len(sigs)-1]
	count := 0
	for _, s := range recent {
		if s == last {
			count++
		}
	}
	return count >= repeats
}
