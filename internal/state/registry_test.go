// internal/state/registry_test.go
package state

import (
	"errors"
	"testing"

	"github.com/user/vigild/internal/types"
)

func TestRegistry_RegisterIdempotent(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	first, err := reg.Register("u1", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != types.StatusActive {
		t.Errorf("expected active status, got %s", first.Status)
	}

	second, err := reg.Register("u1", "Someone Else")
	if err != nil {
		t.Fatal(err)
	}
	if second.DisplayName != "Alice" {
		t.Errorf("re-register changed display name to %q", second.DisplayName)
	}
	if !second.RegisteredAt.Equal(first.RegisteredAt) {
		t.Error("re-register changed registered_at")
	}
	if second.LastSeenAt.Before(first.LastSeenAt) {
		t.Error("last_seen_at went backwards")
	}
}

func TestRegistry_RegisterHookFiresOnceForNewUser(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	var hooked []types.UserID
	reg.OnRegister(func(u *types.User) { hooked = append(hooked, u.UserID) })

	if _, err := reg.Register("u1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register("u1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if len(hooked) != 1 || hooked[0] != "u1" {
		t.Errorf("expected hook once for u1, got %v", hooked)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	_, err := reg.Get("nobody")
	if !errors.Is(err, types.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRegistry_TouchBumpsLastSeen(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	u, err := reg.Register("u1", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Touch("u1"); err != nil {
		t.Fatal(err)
	}
	after, err := reg.Get("u1")
	if err != nil {
		t.Fatal(err)
	}
	if after.LastSeenAt.Before(u.LastSeenAt) {
		t.Error("touch did not advance last_seen_at")
	}
}

func TestRegistry_ListFiltersByStatus(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	if _, err := reg.Register("u1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register("u2", "Bob"); err != nil {
		t.Fatal(err)
	}
	if err := reg.SetStatus("u2", types.StatusInactive); err != nil {
		t.Fatal(err)
	}

	active, err := reg.List(types.StatusActive)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].UserID != "u1" {
		t.Errorf("expected only u1 active, got %v", active)
	}

	all, err := reg.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 users, got %d", len(all))
	}
}
