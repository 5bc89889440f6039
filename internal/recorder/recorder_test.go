package recorder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/internal/session"
	"github.com/fleetforge/conductor/pkg/model"
)

func TestRecordingSenderWritesTraceAndEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer server.Close()

	root := t.TempDir()
	sess, err := session.New(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Close()

	endpoint := model.ModelEndpoint{Provider: "generic", URL: server.URL}
	channel := comms.NewChannel(endpoint, comms.NewPool(0), comms.DefaultConfig(), nil)
	rec := NewRecordingSender(channel, sess, "developer-1")

	_, resp, err := rec.Send(context.Background(), comms.Request{Model: "test-model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi" {
		t.Fatalf("expected response text 'hi', got %q", resp.Text)
	}

	events, err := session.Events(sess.Dir)
	if err != nil {
		t.Fatalf("unexpected error reading events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "agent.send" {
		t.Fatalf("expected one agent.send event, got %+v", events)
	}
}

func TestReplaySenderServesRecordedResponsesInOrder(t *testing.T) {
	dir := t.TempDir()

	first, _ := json.Marshal(comms.Response{Text: "first"})
	second, _ := json.Marshal(comms.Response{Text: "second"})
	writeTraceFile(t, dir, "manager-1_000001.response.json", first)
	writeTraceFile(t, dir, "manager-1_000002.response.json", second)

	replay, err := NewReplaySender(dir, "manager-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, resp1, err := replay.Send(context.Background(), comms.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp1.Text != "first" {
		t.Fatalf("expected 'first', got %q", resp1.Text)
	}

	_, resp2, err := replay.Send(context.Background(), comms.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp2.Text != "second" {
		t.Fatalf("expected 'second', got %q", resp2.Text)
	}

	if _, _, err := replay.Send(context.Background(), comms.Request{}); err == nil {
		t.Fatal("expected an error once the recording is exhausted")
	}
}

// TestReplaySenderIsolatesByAgentName guards against the replay channel
// handing one agent another agent's recorded responses: a developer
// agent's pointer must only ever advance through files recorded under its
// own agent name, regardless of what else is interleaved in the same trace
// directory (spec.md §4.3, "keyed by agent name").
func TestReplaySenderIsolatesByAgentName(t *testing.T) {
	dir := t.TempDir()

	managerResp, _ := json.Marshal(comms.Response{Text: "manager-says"})
	devResp, _ := json.Marshal(comms.Response{Text: "developer-says"})
	writeTraceFile(t, dir, "manager-1_000001.response.json", managerResp)
	writeTraceFile(t, dir, "developer-1_000002.response.json", devResp)

	devReplay, err := NewReplaySender(dir, "developer-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, resp, err := devReplay.Send(context.Background(), comms.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "developer-says" {
		t.Fatalf("expected developer-1's own response, got %q", resp.Text)
	}

	if _, _, err := devReplay.Send(context.Background(), comms.Request{}); err == nil {
		t.Fatal("expected exhaustion: developer-1 only recorded one response")
	}
}

func writeTraceFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(dir+"/"+name, data, 0o644); err != nil {
		t.Fatalf("write trace file: %v", err)
	}
}
