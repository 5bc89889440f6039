// Package recorder decorates a comms.Channel so every send/receive is
// captured to the session's event log and per-query trace files, and
// provides the replay-mode counterpart that serves those same traces back
// deterministically (spec.md §4.1's event log and replay mode).
package recorder

import (
	"context"
	"encoding/json"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/internal/session"
)

// Sender matches agent.Sender without importing internal/agent, avoiding a
// dependency cycle (agent already depends on comms; recorder sits above
// both and is consumed by coordinator/cmd).
type Sender interface {
	Send(ctx context.Context, req comms.Request) (context.Context, comms.Response, error)
}

// RecordingSender wraps any Sender (a bare *comms.Channel, or an
// agent.FailoverSender trying several), persisting every request and
// response to sess's trace directory and appending a corresponding event to
// its log.
type RecordingSender struct {
	inner   Sender
	sess    *session.Session
	agentID string
}

// NewRecordingSender returns a Sender that records every call inner makes
// into sess, attributing events to agentID.
func NewRecordingSender(inner Sender, sess *session.Session, agentID string) *RecordingSender {
	return &RecordingSender{inner: inner, sess: sess, agentID: agentID}
}

// Send issues req over the wrapped sender, then persists the request and
// response bodies and appends a session event keyed by the call's
// correlation ID.
func (s *RecordingSender) Send(ctx context.Context, req comms.Request) (context.Context, comms.Response, error) {
	ctx, resp, err := s.inner.Send(ctx, req)

	correlationID, _ := comms.CorrelationID(ctx)
	tp := s.sess.NewTrace(s.agentID, correlationID)

	reqBytes, _ := json.Marshal(req)
	var respBytes []byte
	if err == nil {
		respBytes = resp.Raw
		if respBytes == nil {
			respBytes, _ = json.Marshal(resp)
		}
	}
	_ = s.sess.WriteTrace(tp, reqBytes, respBytes)

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	_, _ = s.sess.Append("agent.send", s.agentID, map[string]any{
		"correlation_id": correlationID,
		"request_path":   tp.RequestPath,
		"response_path":  tp.ResponsePath,
		"error":          errMsg,
	})

	return ctx, resp, err
}

// ReplaySender serves recorded responses back in the order they were
// captured, instead of issuing live requests. Exhausting the recorded
// traces is an error (spec.md §4.1, "replay exhaustion is an error"):
// a replayed run that asks for more turns than were recorded cannot
// silently fall back to a live call, since that would defeat determinism.
type ReplaySender struct {
	replay *session.ReplayChannel
}

// NewReplaySender builds a ReplaySender over the traces recorded in
// traceDir for agentID. One ReplaySender must be reused across every call
// a given agent instance makes (the coordinator keeps one per agent
// identity) so its next-unread pointer advances instead of resetting.
func NewReplaySender(traceDir, agentID string) (*ReplaySender, error) {
	replay, err := session.NewReplayChannel(traceDir, agentID)
	if err != nil {
		return nil, err
	}
	return &ReplaySender{replay: replay}, nil
}

// Send ignores req entirely and returns the next recorded response in
// capture order.
func (s *ReplaySender) Send(ctx context.Context, req comms.Request) (context.Context, comms.Response, error) {
	raw, err := s.replay.Next()
	if err != nil {
		return ctx, comms.Response{}, err
	}
	var resp comms.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ctx, comms.Response{}, err
	}
	resp.Raw = raw
	return ctx, resp, nil
}

var _ Sender = (*RecordingSender)(nil)
var _ Sender = (*ReplaySender)(nil)
