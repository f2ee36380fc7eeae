// internal/types/window.go
package types

import "time"

// Window selects a reporting period for ledger aggregation.
type Window string

const (
	WindowToday Window = "today"
	Window7d    Window = "7d"
	Window30d   Window = "30d"
)

// Cutoff returns the earliest timestamp included in the window, relative
// to now. "today" starts at local midnight; 7d/30d are rolling.
func (w Window) Cutoff(now time.Time) time.Time {
	switch w {
	case Window7d:
		return now.Add(-7 * 24 * time.Hour)
	case Window30d:
		return now.Add(-30 * 24 * time.Hour)
	default:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}
}

// ParseWindow maps a user-supplied window name, defaulting to today.
func ParseWindow(s string) (Window, bool) {
	switch s {
	case "", "today":
		return WindowToday, true
	case "7d", "week":
		return Window7d, true
	case "30d", "month":
		return Window30d, true
	}
	return WindowToday, false
}
