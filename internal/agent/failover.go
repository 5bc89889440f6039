package agent

import (
	"context"
	"time"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/internal/obslog"
	"github.com/fleetforge/conductor/internal/retry"
	"github.com/fleetforge/conductor/pkg/model"
)

// FailoverConfig bounds how many endpoints a FailoverSender will try and
// how long it waits between attempts against the same endpoint.
type FailoverConfig struct {
	Retry retry.Config
}

// DefaultFailoverConfig mirrors the teacher's conservative failover policy.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{Retry: retry.Config{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Factor: 2, Jitter: true}}
}

// FailoverSender tries each channel in priority order, retrying within a
// channel per FailoverConfig.Retry before moving to the next one (spec.md
// §4.5: an agent falls back to an alternate model endpoint rather than
// failing the whole sub-task on one upstream's outage).
type FailoverSender struct {
	channels []*comms.Channel
	cfg      FailoverConfig
	logger   *obslog.Logger
	agentID  string
}

// NewFailoverSender wraps channels, tried in order.
func NewFailoverSender(channels []*comms.Channel, cfg FailoverConfig, logger *obslog.Logger, agentID string) *FailoverSender {
	if logger == nil {
		logger = obslog.Default
	}
	return &FailoverSender{channels: channels, cfg: cfg, logger: logger, agentID: agentID}
}

func (f *FailoverSender) Send(ctx context.Context, req comms.Request) (context.Context, comms.Response, error) {
	var lastErr error
	var lastCtx context.Context = ctx

	for i, ch := range f.channels {
		resp, result := retry.DoWithValue(ctx, f.cfg.Retry, func() (comms.Response, error) {
			callCtx, r, err := ch.Send(ctx, req)
			lastCtx = callCtx
			return r, err
		})
		if result.Err == nil {
			return lastCtx, resp, nil
		}
		lastErr = result.Err
		f.logger.Warn(obslog.AgentRetry, "", f.agentID, map[string]any{
			"channel_index": i,
			"error":         result.Err.Error(),
			"attempts":      result.Attempts,
		})
	}

	return lastCtx, comms.Response{}, &model.CommunicationError{Endpoint: "all endpoints exhausted", Err: lastErr}
}
