// internal/types/interfaces.go
package types

import "time"

type Registry interface {
	Register(id UserID, displayName string) (*User, error)
	Get(id UserID) (*User, error)
	Touch(id UserID) error
	List(status UserStatus) ([]*User, error)
	SetStatus(id UserID, status UserStatus) error
}

// UserState bundles one user's history, notes, and settings. Two handles
// for the same ID share storage; handles for different IDs never do.
type UserState interface {
	AppendMessage(role, content string) error
	RecentMessages(limit int) ([]ConversationEntry, error)
	AppendNote(text string) error
	RecentNotes(limit int) ([]Note, error)
	Settings() (UserSettings, error)
	UpdateSettings(patch SettingsPatch) (UserSettings, error)
}

type StateArena interface {
	Open(id UserID) UserState
}

type Ledger interface {
	Record(rec *UsageRecord) error
	Aggregate(id UserID, w Window) (*UsageTotals, error)
}

type Scheduler interface {
	Pause(id UserID) error
	Resume(id UserID) error
	Reschedule(id UserID, interval time.Duration) error
	Remove(id UserID)
	ScheduleOnce(id UserID, delay time.Duration, reason string) JobID
	Status(id UserID) JobStatus
}

// Transport is the outbound half of the messaging boundary.
type Transport interface {
	Deliver(id UserID, text string) error
}
