// internal/scheduler/snapshot_test.go
package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/user/vigild/internal/types"
)

type fakeRegistry struct {
	users []*types.User
}

func (f *fakeRegistry) Register(id types.UserID, name string) (*types.User, error) { return nil, nil }
func (f *fakeRegistry) Get(id types.UserID) (*types.User, error)                   { return nil, nil }
func (f *fakeRegistry) Touch(id types.UserID) error                                { return nil }
func (f *fakeRegistry) SetStatus(id types.UserID, s types.UserStatus) error        { return nil }
func (f *fakeRegistry) List(status types.UserStatus) ([]*types.User, error) {
	var out []*types.User
	for _, u := range f.users {
		if status == "" || u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeState struct {
	settings types.UserSettings
}

func (f *fakeState) AppendMessage(role, content string) error { return nil }
func (f *fakeState) AppendNote(text string) error             { return nil }
func (f *fakeState) RecentMessages(limit int) ([]types.ConversationEntry, error) {
	return nil, nil
}
func (f *fakeState) RecentNotes(limit int) ([]types.Note, error) { return nil, nil }
func (f *fakeState) Settings() (types.UserSettings, error)       { return f.settings, nil }
func (f *fakeState) UpdateSettings(p types.SettingsPatch) (types.UserSettings, error) {
	return f.settings, nil
}

type fakeArena struct {
	states map[types.UserID]*fakeState
}

func (f *fakeArena) Open(id types.UserID) types.UserState {
	if st, ok := f.states[id]; ok {
		return st
	}
	return &fakeState{}
}

func TestRestoreResumesPersistedNextFire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.json")

	reg := &fakeRegistry{users: []*types.User{
		{UserID: "u1", Status: types.StatusActive},
	}}
	arena := &fakeArena{states: map[types.UserID]*fakeState{
		"u1": {settings: types.UserSettings{
			HeartbeatEnabled:  true,
			HeartbeatInterval: time.Hour,
		}},
	}}

	first := New(func(types.UserID, string) {}, nil, path)
	first.AddUser("u1", time.Hour, true, time.Time{})
	persisted := first.Status("u1").NextFire
	first.Stop()

	second := New(func(types.UserID, string) {}, nil, path)
	if err := second.Restore(reg, arena); err != nil {
		t.Fatal(err)
	}
	defer second.Stop()

	restored := second.Status("u1")
	if !restored.Exists {
		t.Fatal("expected u1 restored")
	}
	if !restored.Enabled {
		t.Error("expected enabled restored from settings")
	}
	if !restored.NextFire.Equal(persisted) {
		t.Errorf("next fire not resumed: persisted %s, restored %s", persisted, restored.NextFire)
	}
}

func TestRestoreAdvancesPastNextFireWithoutBurst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.json")

	// Snapshot with a next-fire two-and-a-bit intervals in the past.
	stale := &snapshot{Users: []userSnapshot{{
		UserID:   "u1",
		Enabled:  true,
		Interval: time.Hour.String(),
		NextFire: time.Now().Add(-130 * time.Minute),
	}}}
	if err := writeSnapshot(path, stale); err != nil {
		t.Fatal(err)
	}

	reg := &fakeRegistry{users: []*types.User{
		{UserID: "u1", Status: types.StatusActive},
	}}
	arena := &fakeArena{states: map[types.UserID]*fakeState{
		"u1": {settings: types.UserSettings{
			HeartbeatEnabled:  true,
			HeartbeatInterval: time.Hour,
		}},
	}}

	sched := New(func(types.UserID, string) {}, nil, path)
	if err := sched.Restore(reg, arena); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	next := sched.Status("u1").NextFire
	now := time.Now()
	if !next.After(now) {
		t.Errorf("next fire still in the past: %s", next)
	}
	if next.After(now.Add(time.Hour)) {
		t.Errorf("next fire more than one interval away: %s", next)
	}
}

func TestRestoreRearmsPendingOneShots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.json")

	first := New(func(types.UserID, string) {}, nil, path)
	first.ScheduleOnce("u1", time.Hour, "follow up")
	first.Stop()

	second := New(func(types.UserID, string) {}, nil, path)
	if err := second.Restore(&fakeRegistry{}, &fakeArena{}); err != nil {
		t.Fatal(err)
	}
	defer second.Stop()

	if got := second.PendingOneShots("u1"); got != 1 {
		t.Errorf("expected 1 re-armed one-shot, got %d", got)
	}
}

func TestRestoreSkipsInactiveUsers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.json")

	reg := &fakeRegistry{users: []*types.User{
		{UserID: "u1", Status: types.StatusActive},
		{UserID: "u2", Status: types.StatusInactive},
	}}
	arena := &fakeArena{states: map[types.UserID]*fakeState{
		"u1": {settings: types.UserSettings{HeartbeatEnabled: true, HeartbeatInterval: time.Hour}},
		"u2": {settings: types.UserSettings{HeartbeatEnabled: true, HeartbeatInterval: time.Hour}},
	}}

	sched := New(func(types.UserID, string) {}, nil, path)
	if err := sched.Restore(reg, arena); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if !sched.Status("u1").Exists {
		t.Error("expected u1 scheduled")
	}
	if sched.Status("u2").Exists {
		t.Error("inactive u2 should not be scheduled")
	}
}
