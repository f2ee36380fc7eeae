// internal/commands/handlers.go
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/user/vigild/internal/ledger"
	"github.com/user/vigild/internal/types"
	"github.com/user/vigild/pkg/engine"
)

// handleStatus reports the caller's settings, cost windows, and schedule.
// It never touches the decision engine.
func (r *Router) handleStatus(userID types.UserID) string {
	st := r.arena.Open(userID)
	settings, err := st.Settings()
	if err != nil {
		return "Couldn't read your settings: " + err.Error()
	}

	var b strings.Builder
	b.WriteString("Status Report\n\n")
	fmt.Fprintf(&b, "Model: %s\n", settings.ModelID)

	b.WriteString("\nAPI Costs:\n")
	today, err := r.usage.Aggregate(userID, types.WindowToday)
	if err != nil {
		return "Couldn't read usage data: " + err.Error()
	}
	week, _ := r.usage.Aggregate(userID, types.Window7d)
	month, _ := r.usage.Aggregate(userID, types.Window30d)

	if today.Requests == 0 && month.Requests == 0 {
		b.WriteString("No API usage recorded yet\n")
	} else {
		fmt.Fprintf(&b, "Today:      $%.4f (%d requests)\n", today.Cost, today.Requests)
		fmt.Fprintf(&b, "This Week:  $%.4f (%d requests)\n", week.Cost, week.Requests)
		fmt.Fprintf(&b, "This Month: $%.4f (%d requests)\n", month.Cost, month.Requests)
		fmt.Fprintf(&b, "\nTokens Today: %d (%d in, %d out)\n",
			today.InputTokens+today.OutputTokens, today.InputTokens, today.OutputTokens)
	}

	b.WriteString("\nHeartbeat:\n")
	b.WriteString(describeSchedule(r.sched.Status(userID)))
	return b.String()
}

// handleModel validates and switches the caller's model. An unknown name
// changes nothing.
func (r *Router) handleModel(userID types.UserID, args []string) string {
	if len(args) != 1 {
		return "Usage: " + Prefix + "model <name>\nKnown models: " + strings.Join(ledger.KnownModels(), ", ")
	}
	name := args[0]
	if !ledger.KnownModel(name) {
		return fmt.Sprintf("Unknown model %q. Known models: %s", name, strings.Join(ledger.KnownModels(), ", "))
	}

	st := r.arena.Open(userID)
	if _, err := st.UpdateSettings(types.SettingsPatch{ModelID: &name}); err != nil {
		return "Couldn't update your settings: " + err.Error()
	}
	return fmt.Sprintf("Model switched to %s.", name)
}

func (r *Router) handleHeartbeat(ctx context.Context, userID types.UserID, args []string) string {
	if len(args) == 0 {
		return "Usage: " + Prefix + "heartbeat on|off|status|test"
	}

	switch strings.ToLower(args[0]) {
	case "on":
		return r.setHeartbeat(userID, true)
	case "off":
		return r.setHeartbeat(userID, false)
	case "status":
		return describeSchedule(r.sched.Status(userID))
	case "test":
		return r.heartbeatTest(ctx, userID)
	}
	return fmt.Sprintf("Unknown heartbeat option %q. Usage: %sheartbeat on|off|status|test", args[0], Prefix)
}

// setHeartbeat persists the flag into settings and toggles the scheduler,
// so the state survives restart and takes effect at the next fire.
func (r *Router) setHeartbeat(userID types.UserID, enabled bool) string {
	st := r.arena.Open(userID)
	if _, err := st.UpdateSettings(types.SettingsPatch{HeartbeatEnabled: &enabled}); err != nil {
		return "Couldn't update your settings: " + err.Error()
	}

	var err error
	if enabled {
		err = r.sched.Resume(userID)
	} else {
		err = r.sched.Pause(userID)
	}
	if err != nil {
		return "Settings saved, but the scheduler reported: " + err.Error()
	}
	if enabled {
		return "Heartbeat enabled. I'll check in periodically."
	}
	return "Heartbeat paused. I'll stay quiet until you turn it back on."
}

// heartbeatTest runs one real engine call with the caller's context but
// suppresses delivery, history, and the ledger, surfacing the decision.
func (r *Router) heartbeatTest(ctx context.Context, userID types.UserID) string {
	result, err := r.ticks.RunHeartbeat(ctx, userID, "manual test", true)
	if err != nil {
		return "Heartbeat test failed: " + err.Error()
	}

	var b strings.Builder
	b.WriteString("Heartbeat test (nothing was sent or recorded)\n\n")
	if result.Action == engine.ActionSend {
		fmt.Fprintf(&b, "Decision: send\nWould have sent: %s\n", result.Message)
	} else {
		b.WriteString("Decision: stay silent\n")
	}
	if result.Reasoning != "" {
		fmt.Fprintf(&b, "\nReasoning: %s\n", result.Reasoning)
	}
	fmt.Fprintf(&b, "\nTokens: %d in, %d out", result.Usage.InputTokens, result.Usage.OutputTokens)
	return b.String()
}

func (r *Router) handleNotes(userID types.UserID) string {
	st := r.arena.Open(userID)
	notes, err := st.RecentNotes(10)
	if err != nil {
		return "Couldn't read your notes: " + err.Error()
	}
	if len(notes) == 0 {
		return "No notes yet."
	}

	var b strings.Builder
	b.WriteString("Recent notes:\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "- [%s] %s\n", n.Timestamp.Format("2006-01-02 15:04"), n.Text)
	}
	return b.String()
}

func (r *Router) handleHelp() string {
	return strings.Join([]string{
		"Commands:",
		Prefix + "status - model, costs, and schedule",
		Prefix + "model <name> - switch model",
		Prefix + "heartbeat on|off - enable or pause check-ins",
		Prefix + "heartbeat status - next scheduled check-in",
		Prefix + "heartbeat test - dry-run one check-in",
		Prefix + "notes - recent scratchpad notes",
		Prefix + "help - this message",
	}, "\n")
}

func describeSchedule(js types.JobStatus) string {
	if !js.Exists {
		return "No heartbeat scheduled."
	}
	state := "enabled"
	if !js.Enabled {
		state = "paused"
	}
	return fmt.Sprintf("Heartbeat %s, every %s, next check-in %s",
		state, js.Interval, js.NextFire.Format(time.RFC1123))
}
