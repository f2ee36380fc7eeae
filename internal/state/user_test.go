// internal/state/user_test.go
package state

import (
	"testing"
	"time"

	"github.com/user/vigild/internal/types"
)

func testDefaults() SettingsDefaults {
	return SettingsDefaults{
		ModelID:            "sonnet-4",
		HeartbeatInterval:  15 * time.Minute,
		MaxContextMessages: 50,
	}
}

func TestUserState_AppendAndRecentMessages(t *testing.T) {
	arena := NewArena(t.TempDir(), testDefaults())
	st := arena.Open("u1")

	for _, content := range []string{"one", "two", "three"} {
		if err := st.AppendMessage("user", content); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := st.RecentMessages(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Most recent two, oldest first.
	if msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("unexpected order: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}

func TestUserState_RecentMessagesEmpty(t *testing.T) {
	arena := NewArena(t.TempDir(), testDefaults())

	msgs, err := arena.Open("u1").RecentMessages(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestUserState_Notes(t *testing.T) {
	arena := NewArena(t.TempDir(), testDefaults())
	st := arena.Open("u1")

	if err := st.AppendNote("remember this"); err != nil {
		t.Fatal(err)
	}
	notes, err := st.RecentNotes(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Text != "remember this" {
		t.Errorf("unexpected notes: %v", notes)
	}
}

func TestUserState_SettingsDefaultsOnFirstRead(t *testing.T) {
	arena := NewArena(t.TempDir(), testDefaults())

	s, err := arena.Open("u1").Settings()
	if err != nil {
		t.Fatal(err)
	}
	if s.ModelID != "sonnet-4" {
		t.Errorf("expected default model, got %q", s.ModelID)
	}
	if !s.HeartbeatEnabled {
		t.Error("expected heartbeat enabled by default")
	}
	if s.HeartbeatInterval != 15*time.Minute {
		t.Errorf("expected 15m interval, got %s", s.HeartbeatInterval)
	}
	if s.MaxContextMessages != 50 {
		t.Errorf("expected 50 context messages, got %d", s.MaxContextMessages)
	}
}

func TestUserState_UpdateSettingsMergesOnlyProvidedFields(t *testing.T) {
	arena := NewArena(t.TempDir(), testDefaults())
	st := arena.Open("u1")

	before, err := st.Settings()
	if err != nil {
		t.Fatal(err)
	}

	model := "haiku-3.5"
	after, err := st.UpdateSettings(types.SettingsPatch{ModelID: &model})
	if err != nil {
		t.Fatal(err)
	}
	if after.ModelID != "haiku-3.5" {
		t.Errorf("expected model updated, got %q", after.ModelID)
	}
	if after.HeartbeatInterval != before.HeartbeatInterval {
		t.Error("interval changed by unrelated patch")
	}
	if after.MaxContextMessages != before.MaxContextMessages {
		t.Error("max context changed by unrelated patch")
	}
	if !after.UpdatedAt.After(before.UpdatedAt) && !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("updated_at went backwards")
	}

	// Persisted, not just in memory.
	reread, err := st.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if reread.ModelID != "haiku-3.5" {
		t.Errorf("update not persisted, got %q", reread.ModelID)
	}
}

func TestArena_SameHandleForSameUser(t *testing.T) {
	arena := NewArena(t.TempDir(), testDefaults())

	a := arena.Open("u1")
	b := arena.Open("u1")
	if a != b {
		t.Error("expected the same handle for the same user")
	}
}

func TestArena_IsolationBetweenUsers(t *testing.T) {
	arena := NewArena(t.TempDir(), testDefaults())

	u1 := arena.Open("u1")
	u2 := arena.Open("u2")

	if err := u1.AppendMessage("user", "secret for u1"); err != nil {
		t.Fatal(err)
	}
	if err := u1.AppendNote("note for u1"); err != nil {
		t.Fatal(err)
	}
	model := "opus-4.5"
	if _, err := u1.UpdateSettings(types.SettingsPatch{ModelID: &model}); err != nil {
		t.Fatal(err)
	}

	msgs, err := u2.RecentMessages(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("u2 sees u1's messages: %v", msgs)
	}
	notes, err := u2.RecentNotes(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("u2 sees u1's notes: %v", notes)
	}
	s, err := u2.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if s.ModelID == "opus-4.5" {
		t.Error("u2 sees u1's settings")
	}
}
