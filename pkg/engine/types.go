package engine

import "time"

// Mode distinguishes unsolicited heartbeat decisions from direct replies.
type Mode string

const (
	ModeHeartbeat Mode = "heartbeat"
	ModeDirect    Mode = "direct"
)

// Action is the engine's heartbeat verdict.
type Action string

const (
	ActionSend   Action = "send"
	ActionSilent Action = "silent"
)

// Message is one conversation turn handed to the engine.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

// Note is one scratchpad entry handed to the engine.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Request carries everything the engine needs for one call.
type Request struct {
	ModelID      string
	Messages     []Message
	Notes        []Note
	Now          time.Time
	Mode         Mode
	SystemPrompt string
}

// Usage reports token counts for one call. The engine returns counts even
// when it chooses silence.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ScheduleRequest asks the scheduler for a one-off future check-in.
type ScheduleRequest struct {
	Delay  time.Duration
	Reason string
}

// Decision is the heartbeat-mode result.
type Decision struct {
	Action    Action
	Text      string
	Reasoning string
	Notes     []string
	Schedules []ScheduleRequest
	Usage     Usage
}

// Reply is the direct-mode result.
type Reply struct {
	Text      string
	Notes     []string
	Schedules []ScheduleRequest
	Usage     Usage
}
