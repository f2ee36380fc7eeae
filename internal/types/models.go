// internal/types/models.go
package types

import "time"

// UserStatus gates scheduling and reporting. Users are never deleted.
type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
)

// User is a registry record, created on first inbound contact.
type User struct {
	UserID       UserID     `json:"user_id"`
	DisplayName  string     `json:"display_name"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	Status       UserStatus `json:"status"`
}

// UserSettings holds per-user knobs. Mutated only by command handlers;
// read by the scheduler and the engine call site.
type UserSettings struct {
	ModelID            string        `json:"model_id"`
	HeartbeatEnabled   bool          `json:"heartbeat_enabled"`
	HeartbeatInterval  time.Duration `json:"heartbeat_interval"`
	MaxContextMessages int           `json:"max_context_messages"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// SettingsPatch carries only the fields an update wants to change.
type SettingsPatch struct {
	ModelID            *string        `json:"model_id,omitempty"`
	HeartbeatEnabled   *bool          `json:"heartbeat_enabled,omitempty"`
	HeartbeatInterval  *time.Duration `json:"heartbeat_interval,omitempty"`
	MaxContextMessages *int           `json:"max_context_messages,omitempty"`
}

// ConversationEntry is one line of a user's append-only history.
type ConversationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
}

// Note is one scratchpad entry written by the engine's side channel.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// RequestKind tags a usage record with the path that produced it.
type RequestKind string

const (
	KindHeartbeat      RequestKind = "heartbeat"
	KindDirectResponse RequestKind = "direct_response"
)

// UsageRecord is one immutable ledger line. Ordering is append order;
// the timestamp is only used for windowed filtering.
type UsageRecord struct {
	UserID       UserID      `json:"user_id"`
	Timestamp    time.Time   `json:"timestamp"`
	ModelID      string      `json:"model_id"`
	InputTokens  int         `json:"input_tokens"`
	OutputTokens int         `json:"output_tokens"`
	Cost         float64     `json:"cost"`
	RequestKind  RequestKind `json:"request_kind"`
}

// UsageTotals is the result of folding ledger records for one user.
type UsageTotals struct {
	UserID       UserID  `json:"user_id"`
	Cost         float64 `json:"cost"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Requests     int     `json:"requests"`
}

// JobStatus reports a user's recurring schedule for status commands.
type JobStatus struct {
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
	NextFire time.Time     `json:"next_fire"`
	Exists   bool          `json:"exists"`
}
