// Package relay is the out-of-band handshake between the server and the
// remote browser agent. The two sides never call each other directly: the
// server leaves a command in the store's outbox, the agent polls and claims
// it, then pushes its result into the inbox, which the server polls for with
// a bounded wait.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/store"
)

// CommandCollectTabs asks the agent to report its open tabs with cookies.
const CommandCollectTabs = "collect_tabs"

// Relay coordinates the command outbox and result inbox.
type Relay struct {
	store        *store.Store
	agentWait    time.Duration
	pollInterval time.Duration
}

// New creates a Relay over the given store.
func New(s *store.Store, cfg config.RelayConfig) *Relay {
	wait := cfg.AgentWait
	if wait <= 0 {
		wait = 15 * time.Second
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{store: s, agentWait: wait, pollInterval: interval}
}

// Post records a command addressed to the agent, overwriting any prior
// unclaimed one for the session, and marks the session's processing status
// pending. It does not wait for an acknowledgement.
func (r *Relay) Post(ctx context.Context, sessionID, command string) error {
	if err := r.store.PutCommand(&models.PendingCommand{
		SessionID: sessionID,
		Command:   command,
	}); err != nil {
		return fmt.Errorf("relay: post command: %w", err)
	}
	if err := r.store.SetStatus(sessionID, models.StatusPending); err != nil {
		return fmt.Errorf("relay: mark pending: %w", err)
	}
	slog.Info("command posted for agent", "session_id", sessionID, "command", command)
	return nil
}

// Poll claims and removes at most one pending command. Invoked by the remote
// agent via the API, never by this subsystem. When several sessions have a
// command outstanding the choice is arbitrary. Returns nil when nothing is
// pending.
func (r *Relay) Poll(ctx context.Context) (*models.PendingCommand, error) {
	cmd, err := r.store.ClaimCommand()
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relay: poll: %w", err)
	}
	slog.Debug("command claimed by agent", "session_id", cmd.SessionID, "command", cmd.Command)
	return cmd, nil
}

// Push records the agent's tab data for a session, replacing any earlier
// unconsumed push.
func (r *Relay) Push(ctx context.Context, push *models.TabPush) error {
	if err := r.store.PutTabPush(push); err != nil {
		return fmt.Errorf("relay: push tabs: %w", err)
	}
	slog.Info("agent pushed tabs", "session_id", push.SessionID, "tabs", len(push.URLs))
	return nil
}

// AwaitTabs polls the inbox for the agent's push, checking every poll
// interval until the configured total wait elapses. The wait is a tunable
// reliability parameter, not a correctness guarantee: an agent slower than
// the window simply looks like "no push". Returns ok=false when the window
// closes empty; that is an expected outcome, not an error.
func (r *Relay) AwaitTabs(ctx context.Context, sessionID string) (*models.TabPush, bool, error) {
	deadline := time.Now().Add(r.agentWait)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		push, err := r.store.TakeTabPush(sessionID)
		if err == nil {
			return push, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("relay: await tabs: %w", err)
		}

		if time.Now().After(deadline) {
			slog.Info("agent wait window closed without a push", "session_id", sessionID, "wait", r.agentWait)
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}
	}
}
