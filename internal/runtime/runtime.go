// internal/runtime/runtime.go
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	ctxengine "github.com/user/vigild/internal/context"
	"github.com/user/vigild/internal/ledger"
	"github.com/user/vigild/internal/scheduler"
	"github.com/user/vigild/internal/types"
	"github.com/user/vigild/pkg/engine"
)

// Runtime executes heartbeat ticks and direct responses: context load,
// engine call under a bounded timeout, delivery, history append, ledger
// record. Failures are caught here; nothing propagates past a tick.
type Runtime struct {
	arena     types.StateArena
	usage     types.Ledger
	provider  engine.Provider
	transport types.Transport
	builder   *ctxengine.Engine
	schedule  chan<- scheduler.Request

	sem     *semaphore.Weighted
	timeout time.Duration
}

// New wires a Runtime. maxConcurrent bounds simultaneous engine calls
// across all users; timeout bounds each call so a hung engine cannot wedge
// a user's scheduler slot.
func New(
	arena types.StateArena,
	usage types.Ledger,
	provider engine.Provider,
	transport types.Transport,
	builder *ctxengine.Engine,
	schedule chan<- scheduler.Request,
	maxConcurrent int64,
	timeout time.Duration,
) *Runtime {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Runtime{
		arena:     arena,
		usage:     usage,
		provider:  provider,
		transport: transport,
		builder:   builder,
		schedule:  schedule,
		sem:       semaphore.NewWeighted(maxConcurrent),
		timeout:   timeout,
	}
}

// HeartbeatResult surfaces what the engine decided, for logging and for
// the heartbeat test command.
type HeartbeatResult struct {
	Action    engine.Action
	Message   string
	Reasoning string
	Usage     engine.Usage
	DryRun    bool
}

// RunHeartbeat executes one tick for a user. reason is non-empty for
// one-shot ticks. With dryRun set the engine is still invoked for real,
// but delivery, history, notes, scheduling, and the ledger are all
// suppressed; the decision is only returned to the caller.
func (r *Runtime) RunHeartbeat(ctx context.Context, userID types.UserID, reason string, dryRun bool) (*HeartbeatResult, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire tick slot: %w", err)
	}
	defer r.sem.Release(1)

	st := r.arena.Open(userID)
	settings, err := st.Settings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	// Context is read once, before the engine call, never re-read after.
	messages, err := st.RecentMessages(settings.MaxContextMessages)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	notes, err := st.RecentNotes(0)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}

	req, estTokens := r.builder.BuildRequest(settings.ModelID, engine.ModeHeartbeat, messages, notes)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	dec, err := r.provider.DecideHeartbeat(callCtx, req)
	if err != nil {
		// No usage data came back, so nothing is recorded for this tick.
		return nil, fmt.Errorf("decision engine: %w", err)
	}

	slog.Info("heartbeat decision",
		"user_id", string(userID),
		"action", string(dec.Action),
		"reason", reason,
		"dry_run", dryRun,
		"est_input_tokens", estTokens,
		"input_tokens", dec.Usage.InputTokens,
		"output_tokens", dec.Usage.OutputTokens,
	)

	result := &HeartbeatResult{
		Action:    dec.Action,
		Message:   dec.Text,
		Reasoning: dec.Reasoning,
		Usage:     dec.Usage,
		DryRun:    dryRun,
	}
	if dryRun {
		return result, nil
	}

	r.applySideChannels(userID, st, dec.Notes, dec.Schedules)

	if dec.Action == engine.ActionSend && dec.Text != "" {
		// The content was genuinely generated, so history and the ledger
		// record it even if the send itself fails.
		if err := r.transport.Deliver(userID, dec.Text); err != nil {
			slog.Error("deliver heartbeat message", "user_id", string(userID), "error", err)
		}
		if err := appendRetry(st, "assistant", dec.Text); err != nil {
			slog.Error("append assistant message", "user_id", string(userID), "error", err)
		}
	}

	r.record(userID, settings.ModelID, dec.Usage, types.KindHeartbeat)
	return result, nil
}

// RunDirect appends the user's message, asks the engine for a reply, and
// returns the reply text for the transport to send.
func (r *Runtime) RunDirect(ctx context.Context, userID types.UserID, text string) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire run slot: %w", err)
	}
	defer r.sem.Release(1)

	st := r.arena.Open(userID)
	if err := appendRetry(st, "user", text); err != nil {
		return "", fmt.Errorf("append user message: %w", err)
	}

	settings, err := st.Settings()
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}
	messages, err := st.RecentMessages(settings.MaxContextMessages)
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}
	notes, err := st.RecentNotes(0)
	if err != nil {
		return "", fmt.Errorf("load notes: %w", err)
	}

	req, _ := r.builder.BuildRequest(settings.ModelID, engine.ModeDirect, messages, notes)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	reply, err := r.provider.RespondDirect(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("decision engine: %w", err)
	}

	r.applySideChannels(userID, st, reply.Notes, reply.Schedules)
	r.record(userID, settings.ModelID, reply.Usage, types.KindDirectResponse)

	if reply.Text != "" {
		if err := appendRetry(st, "assistant", reply.Text); err != nil {
			slog.Error("append assistant message", "user_id", string(userID), "error", err)
		}
	}
	return reply.Text, nil
}

// applySideChannels writes engine-produced notes and forwards scheduling
// requests over the channel into the scheduler's job table.
func (r *Runtime) applySideChannels(userID types.UserID, st types.UserState, notes []string, schedules []engine.ScheduleRequest) {
	for _, n := range notes {
		if err := st.AppendNote(n); err != nil {
			slog.Error("append note", "user_id", string(userID), "error", err)
		}
	}
	for _, sr := range schedules {
		select {
		case r.schedule <- scheduler.Request{UserID: userID, Delay: sr.Delay, Reason: sr.Reason}:
		default:
			slog.Warn("schedule request dropped, channel full", "user_id", string(userID), "reason", sr.Reason)
		}
	}
}

func (r *Runtime) record(userID types.UserID, modelID string, usage engine.Usage, kind types.RequestKind) {
	rec := &types.UsageRecord{
		UserID:       userID,
		Timestamp:    time.Now(),
		ModelID:      modelID,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Cost:         ledger.Cost(modelID, usage.InputTokens, usage.OutputTokens),
		RequestKind:  kind,
	}
	if err := r.usage.Record(rec); err != nil {
		slog.Error("record usage", "user_id", string(userID), "error", err)
	}
}

// appendRetry tries a history append twice before giving up; a transient
// write fault shouldn't lose a message.
func appendRetry(st types.UserState, role, content string) error {
	if err := st.AppendMessage(role, content); err != nil {
		return st.AppendMessage(role, content)
	}
	return nil
}
