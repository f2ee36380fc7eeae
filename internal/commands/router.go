// internal/commands/router.go
package commands

import (
	"context"
	"strings"

	"github.com/user/vigild/internal/runtime"
	"github.com/user/vigild/internal/types"
)

// Prefix is the reserved command marker. Text starting with it is offered
// to the router before the decision-engine path sees it.
const Prefix = "..."

// TickRunner is the slice of the runtime the test command needs.
type TickRunner interface {
	RunHeartbeat(ctx context.Context, userID types.UserID, reason string, dryRun bool) (*runtime.HeartbeatResult, error)
}

// Router parses prefixed commands and dispatches to handlers. Handlers
// operate only through the caller's own state, the ledger's per-user
// aggregate, and the scheduler's public operations; nothing here can reach
// another user's data.
type Router struct {
	arena types.StateArena
	usage types.Ledger
	sched types.Scheduler
	ticks TickRunner
}

// New creates a Router over the given collaborators.
func New(arena types.StateArena, usage types.Ledger, sched types.Scheduler, ticks TickRunner) *Router {
	return &Router{arena: arena, usage: usage, sched: sched, ticks: ticks}
}

// Route handles one inbound text for one user. It returns the reply and
// true when the text was a recognized command. Non-prefixed text and
// unknown words under the prefix both return false so accidental prefix
// collisions in conversation never produce visible errors.
func (r *Router) Route(ctx context.Context, userID types.UserID, text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, Prefix) {
		return "", false
	}

	fields := strings.Fields(trimmed[len(Prefix):])
	if len(fields) == 0 {
		return "", false
	}
	word := strings.ToLower(fields[0])
	args := fields[1:]

	switch word {
	case "status":
		return r.handleStatus(userID), true
	case "model":
		return r.handleModel(userID, args), true
	case "heartbeat":
		return r.handleHeartbeat(ctx, userID, args), true
	case "notes":
		return r.handleNotes(userID), true
	case "help":
		return r.handleHelp(), true
	}
	return "", false
}
