// Package coordinator decomposes a natural-language request into
// sequence-ordered sub-tasks via a manager agent, dispatches each bucket of
// same-sequence assignments to developer/auditor agent instances running
// concurrently, and runs a final verification pass (spec.md §4.7). Its
// registry-of-roles-plus-dispatch-loop shape is grounded on the teacher's
// multiagent Orchestrator, though the routing semantics are entirely
// replaced by sequence-ordered decomposition.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fleetforge/conductor/internal/agent"
	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/internal/obslog"
	"github.com/fleetforge/conductor/internal/provenance"
	"github.com/fleetforge/conductor/internal/recorder"
	"github.com/fleetforge/conductor/internal/session"
	"github.com/fleetforge/conductor/internal/toolrt"
	"github.com/fleetforge/conductor/pkg/model"
)

// MaxRoleRetries bounds how many times the coordinator re-prompts a
// developer/auditor agent whose response didn't validate (missing
// raise_callback, …) before giving up on that agent instance.
const MaxRoleRetries = 3

// DecomposeMaxRetries bounds how many corrective re-prompts the manager
// gets during decomposition before a bad response (no assignments, or
// assignments naming unconfigured roles) becomes a fatal OrganizationError
// (spec.md §4.7: "up to max_retries = 2").
const DecomposeMaxRetries = 2

// MaxConcurrentAssignments bounds the worker pool dispatching a single
// sequence bucket (spec.md §4.7, "within a bucket, run assignments
// concurrently (bounded pool)").
const MaxConcurrentAssignments = 4

// Coordinator owns the roles registry, tool registry, and session for one
// end-to-end request.
type Coordinator struct {
	roles     map[model.Role]model.AgentConfig
	pool      *comms.Pool
	bus       *comms.Bus
	tools     *toolrt.Registry
	sess      *session.Session
	ledger    *provenance.Ledger
	logger    *obslog.Logger
	replayDir string // non-empty in replay mode: traceDir to serve from instead of live channels

	instanceSeq sync.Map // model.Role -> *int64, for numbering instances

	replayMu      sync.Mutex
	replaySenders map[string]*recorder.ReplaySender // agentID -> its own replay pointer, reused across retries
}

// New constructs a Coordinator scoped to one session, issuing live requests
// and recording every one of them to sess.
func New(roles map[model.Role]model.AgentConfig, pool *comms.Pool, bus *comms.Bus, tools *toolrt.Registry, sess *session.Session, logger *obslog.Logger) *Coordinator {
	if logger == nil {
		logger = obslog.Default
	}
	return &Coordinator{roles: roles, pool: pool, bus: bus, tools: tools, sess: sess, ledger: provenance.New(), logger: logger}
}

// NewReplay constructs a Coordinator that serves every agent's responses
// from a prior session's recorded trace directory instead of issuing live
// requests (spec.md §4.8's replay mode).
func NewReplay(roles map[model.Role]model.AgentConfig, tools *toolrt.Registry, sess *session.Session, logger *obslog.Logger, traceDir string) *Coordinator {
	if logger == nil {
		logger = obslog.Default
	}
	return &Coordinator{roles: roles, tools: tools, sess: sess, ledger: provenance.New(), logger: logger, replayDir: traceDir, replaySenders: make(map[string]*recorder.ReplaySender)}
}

// sender builds the Sender used for one agent instance: in replay mode, a
// recorder.ReplaySender keyed by agentID and drawing only from that
// agent's own recorded responses; otherwise a recorder.RecordingSender
// wrapping a failover sender that tries cfg's endpoints in order. Replay
// senders are cached per agentID on the coordinator (replaySenderFor)
// because decompose/runAssignment call sender() fresh on every retry, and
// each retry of the same agent identity must keep reading forward from
// where it left off rather than rewinding to its first recorded response.
func (c *Coordinator) sender(cfg model.AgentConfig, agentID string) (recorder.Sender, error) {
	if c.replayDir != "" {
		return c.replaySenderFor(agentID)
	}
	return recorder.NewRecordingSender(c.liveSender(cfg), c.sess, agentID), nil
}

func (c *Coordinator) replaySenderFor(agentID string) (recorder.Sender, error) {
	c.replayMu.Lock()
	defer c.replayMu.Unlock()

	if rs, ok := c.replaySenders[agentID]; ok {
		return rs, nil
	}
	rs, err := recorder.NewReplaySender(c.replayDir, agentID)
	if err != nil {
		return nil, err
	}
	c.replaySenders[agentID] = rs
	return rs, nil
}

func (c *Coordinator) liveSender(cfg model.AgentConfig) *agent.FailoverSender {
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = []model.ModelEndpoint{cfg.Endpoint}
	}
	channels := make([]*comms.Channel, len(endpoints))
	for i, ep := range endpoints {
		channels[i] = comms.NewChannel(ep, c.pool, comms.DefaultConfig(), c.bus)
	}
	return agent.NewFailoverSender(channels, agent.DefaultFailoverConfig(), c.logger, string(cfg.Role))
}

// Run decomposes request via the manager, dispatches every resulting
// assignment bucket in sequence order, and returns a final verification
// summary once every edit has been audited or no further work remains.
func (c *Coordinator) Run(ctx context.Context, request string) (Report, error) {
	assignments, err := c.decompose(ctx, request)
	if err != nil {
		return Report{}, err
	}
	c.logger.Info(obslog.Decomposition, c.sess.ID, "manager", map[string]any{"assignments": len(assignments)})

	callbacks, err := c.dispatchAll(ctx, assignments)
	if err != nil {
		return Report{}, err
	}

	return c.verify(ctx, assignments, callbacks), nil
}

// Report summarizes one end-to-end run for the caller.
type Report struct {
	Assignments []model.Assignment
	Callbacks   []model.Callback
	Incomplete  []string
}

// decompose runs the manager agent and collects every assign_task /
// assign_tasks call it makes into a sequence-ordered assignment list
// (spec.md §4.7). Each attempt is a fresh single-shot call to the same
// manager agent identity, matching how the manager's execute_task works:
// there is no persisted multi-turn conversation to append to, so a
// corrective re-prompt folds its feedback into the request text itself
// instead of a new message in an ongoing thread. If no assignments are
// found, or any assignment names a role that isn't configured, the
// manager is re-prompted with a corrective constraint up to
// DecomposeMaxRetries times before decomposition fails fatally.
func (c *Coordinator) decompose(ctx context.Context, request string) ([]model.Assignment, error) {
	cfg, ok := c.roles[model.RoleManager]
	if !ok {
		return nil, &model.OrganizationError{Reason: "no manager role configured"}
	}

	descriptors := toDescriptors(c.tools.Descriptors(cfg.AllowedTools))
	descriptors = append(descriptors, managerToolDescriptors()...)

	currentRequest := request
	var lastErr error

	for attempt := 1; attempt <= DecomposeMaxRetries+1; attempt++ {
		sender, err := c.sender(cfg, "manager-1")
		if err != nil {
			return nil, err
		}

		loop := agent.New(agent.DefaultConfig(), sender, noopExecutor{}, c.logger, "manager-1")
		result, err := loop.Run(ctx, cfg.SystemPrompt, []model.Message{{Role: "user", Content: currentRequest}}, descriptors, cfg.Endpoint.Model)
		if err != nil {
			lastErr = err
			if attempt > DecomposeMaxRetries {
				break
			}
			c.logger.Warn(obslog.RoleRetry, c.sess.ID, "manager-1", map[string]any{"attempt": attempt, "error": err.Error()})
			continue
		}

		assignments, parseErr := parseAssignments(result.Messages)
		if parseErr != nil {
			lastErr = parseErr
			if attempt > DecomposeMaxRetries {
				break
			}
			c.logger.Warn(obslog.RoleRetry, c.sess.ID, "manager-1", map[string]any{"attempt": attempt, "error": parseErr.Error()})
			currentRequest = request + "\n\n[IMPORTANT: Use the assign_task() or assign_tasks() tool to assign tasks.]"
			continue
		}

		bad := invalidRoles(assignments, c.roles)
		if len(bad) > 0 {
			valid := c.validRoleNames()
			_, _ = c.sess.Append(string(model.EventRoleValidationFailed), "manager-1", map[string]any{
				"attempt":       attempt,
				"invalid_roles": bad,
			})
			c.logger.Warn(obslog.RoleValidationFailed, c.sess.ID, "manager-1", map[string]any{"attempt": attempt, "invalid_roles": bad})

			if attempt > DecomposeMaxRetries {
				lastErr = fmt.Errorf("manager assigned invalid roles %v", bad)
				break
			}

			currentRequest = fmt.Sprintf("%s\n\n[SYSTEM CONSTRAINT: You must ONLY assign tasks to these roles: %v]", request, valid)
			_, _ = c.sess.Append(string(model.EventRoleRetry), "manager-1", map[string]any{
				"attempt":     attempt,
				"valid_roles": valid,
			})
			c.logger.Warn(obslog.RoleRetry, c.sess.ID, "manager-1", map[string]any{"attempt": attempt, "valid_roles": valid})
			continue
		}

		sequenced := sequence(assignments)
		_, _ = c.sess.Append(string(model.EventRequestDecomposed), "manager-1", map[string]any{
			"attempt":         attempt,
			"num_assignments": len(sequenced),
		})
		return sequenced, nil
	}

	return nil, &model.OrganizationError{Reason: fmt.Sprintf("manager failed to produce a valid decomposition after %d attempts: %v", DecomposeMaxRetries+1, lastErr)}
}

// invalidRoles returns the distinct role names among assignments that have
// no entry in roles.
func invalidRoles(assignments []model.Assignment, roles map[model.Role]model.AgentConfig) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range assignments {
		if _, ok := roles[a.Role]; ok {
			continue
		}
		name := string(a.Role)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// validRoleNames returns the coordinator's configured role names, sorted,
// for embedding in a corrective re-prompt.
func (c *Coordinator) validRoleNames() []string {
	out := make([]string, 0, len(c.roles))
	for r := range c.roles {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

// sequence assigns a stable Sequence to every assignment missing one and
// sorts by it, so buckets dispatch in order.
func sequence(assignments []model.Assignment) []model.Assignment {
	sort.SliceStable(assignments, func(i, j int) bool { return assignments[i].Sequence < assignments[j].Sequence })
	return assignments
}

// dispatchAll groups assignments into sequence buckets and runs each
// bucket's assignments concurrently (bounded), waiting for a full bucket
// to finish before starting the next (later sequences may depend on
// earlier ones having landed).
func (c *Coordinator) dispatchAll(ctx context.Context, assignments []model.Assignment) ([]model.Callback, error) {
	buckets := bucketBySequence(assignments)
	var all []model.Callback

	for _, seq := range sortedKeys(buckets) {
		bucket := buckets[seq]
		sem := semaphore.NewWeighted(MaxConcurrentAssignments)
		g, gctx := errgroup.WithContext(ctx)

		results := make([]model.Callback, len(bucket))
		for i, a := range bucket {
			i, a := i, a
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil, err
			}
			g.Go(func() error {
				defer sem.Release(1)
				cb, err := c.runAssignment(gctx, a)
				if err != nil {
					return err
				}
				results[i] = cb
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		all = append(all, results...)
		c.logger.Info(obslog.Dispatch, c.sess.ID, "", map[string]any{"sequence": seq, "count": len(bucket)})
	}
	return all, nil
}

// runAssignment runs one developer/auditor agent instance against a single
// assignment, retrying if its final response doesn't raise a callback.
// decompose already validated every assignment's role against c.roles
// (spec.md §4.7's role-validation-during-decomposition requirement), so the
// lookup below is a defensive invariant check, not the primary validation
// path.
func (c *Coordinator) runAssignment(ctx context.Context, a model.Assignment) (model.Callback, error) {
	cfg, ok := c.roles[a.Role]
	if !ok {
		return model.Callback{}, &model.OrganizationError{Reason: fmt.Sprintf("no agent configured for role %q", a.Role)}
	}

	agentID := fmt.Sprintf("%s-%d", a.Role, c.nextInstance(a.Role))
	_, _ = c.sess.Append(string(model.EventTaskAssigned), agentID, map[string]any{
		"assignment_id": a.ID,
		"role":          string(a.Role),
		"sequence":      a.Sequence,
	})

	var lastErr error
	for attempt := 1; attempt <= MaxRoleRetries; attempt++ {
		sender, err := c.sender(cfg, agentID)
		if err != nil {
			lastErr = err
			c.logger.Warn(obslog.AgentError, c.sess.ID, agentID, map[string]any{"attempt": attempt, "error": err.Error()})
			break
		}
		executor := &toolExecutor{registry: c.tools, allowed: cfg.AllowedTools, ledger: c.ledger, agentID: agentID, role: a.Role}
		descriptors := toDescriptors(c.tools.Descriptors(cfg.AllowedTools))
		descriptors = append(descriptors, callbackToolDescriptor())

		_, _ = c.sess.Append(string(model.EventTaskStarted), agentID, map[string]any{
			"assignment_id": a.ID,
			"attempt":       attempt,
		})

		loop := agent.New(agent.DefaultConfig(), sender, executor, c.logger, agentID)
		result, runErr := loop.Run(ctx, cfg.SystemPrompt, []model.Message{{Role: "user", Content: a.Description}}, descriptors, cfg.Endpoint.Model)
		if runErr != nil {
			lastErr = runErr
			c.logger.Warn(obslog.RoleRetry, c.sess.ID, agentID, map[string]any{"attempt": attempt, "error": runErr.Error()})
			_, _ = c.sess.Append(string(model.EventTimeoutRetry), agentID, map[string]any{
				"assignment_id": a.ID,
				"attempt":       attempt,
				"error":         runErr.Error(),
			})
			continue
		}

		cb, parseErr := parseCallback(a.ID, result.Messages)
		if parseErr == nil {
			_, _ = c.sess.Append(string(model.EventTaskCompleted), agentID, map[string]any{
				"assignment_id": a.ID,
				"success":       cb.Success,
				"attempt":       attempt,
			})
			return cb, nil
		}
		lastErr = parseErr
		c.logger.Warn(obslog.RoleRetry, c.sess.ID, agentID, map[string]any{"attempt": attempt, "error": parseErr.Error()})
	}

	_, _ = c.sess.Append(string(model.EventTaskFailed), agentID, map[string]any{
		"assignment_id": a.ID,
		"error":         fmt.Sprint(lastErr),
	})
	return model.Callback{}, &model.OrganizationError{Reason: fmt.Sprintf("agent %s failed to raise a valid callback after %d attempts: %v", agentID, MaxRoleRetries, lastErr)}
}

// verify checks the provenance ledger for edits no auditor has reviewed
// since their most recent change (spec.md §4.7's final verification pass).
func (c *Coordinator) verify(ctx context.Context, assignments []model.Assignment, callbacks []model.Callback) Report {
	incomplete := c.ledger.Incomplete()
	c.logger.Info(obslog.Verification, c.sess.ID, "", map[string]any{"incomplete": len(incomplete)})
	return Report{Assignments: assignments, Callbacks: callbacks, Incomplete: incomplete}
}

func (c *Coordinator) nextInstance(role model.Role) int64 {
	v, _ := c.instanceSeq.LoadOrStore(role, new(int64))
	counter := v.(*int64)
	*counter++
	return *counter
}

func bucketBySequence(assignments []model.Assignment) map[int][]model.Assignment {
	out := make(map[int][]model.Assignment)
	for _, a := range assignments {
		out[a.Sequence] = append(out[a.Sequence], a)
	}
	return out
}

func sortedKeys(m map[int][]model.Assignment) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func toDescriptors(in []toolrt.ToolDescriptor) []comms.ToolDescriptor {
	out := make([]comms.ToolDescriptor, 0, len(in))
	for _, d := range in {
		out = append(out, comms.ToolDescriptor{Name: d.Name, Schema: d.Schema})
	}
	return out
}

// noopExecutor is used for the manager loop: the manager only ever calls
// assign_task/assign_tasks, which decompose() parses directly from the
// transcript rather than dispatching through the tool registry.
type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, call model.ToolCall) model.ToolResult {
	return model.ToolResult{ToolCallID: call.ID, Content: "recorded"}
}

// toolExecutor adapts toolrt.Registry to agent.Executor, recording file
// edits to the provenance ledger and intercepting raise_callback instead of
// dispatching it as a sandboxed tool.
type toolExecutor struct {
	registry *toolrt.Registry
	allowed  []string
	ledger   *provenance.Ledger
	agentID  string
	role     model.Role
}

func (e *toolExecutor) Execute(ctx context.Context, call model.ToolCall) model.ToolResult {
	if call.Name == "raise_callback" {
		return model.ToolResult{ToolCallID: call.ID, Content: "callback recorded"}
	}

	result := e.registry.Execute(ctx, e.agentID, call, e.allowed)
	now := time.Now()
	switch call.Name {
	case "write_file", "edit_file":
		var args struct {
			Path string `json:"path"`
		}
		if json.Unmarshal(call.Arguments, &args) == nil && args.Path != "" {
			if e.role == model.RoleAuditor {
				e.ledger.RecordAudit(args.Path, e.agentID, now)
			} else {
				e.ledger.RecordEdit(args.Path, e.agentID, now)
			}
		}
	case "read_file":
		if e.role == model.RoleAuditor {
			var args struct {
				Path string `json:"path"`
			}
			if json.Unmarshal(call.Arguments, &args) == nil && args.Path != "" {
				e.ledger.RecordAudit(args.Path, e.agentID, now)
			}
		}
	}
	return result
}
