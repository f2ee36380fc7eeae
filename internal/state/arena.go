// internal/state/arena.go
package state

import (
	"path/filepath"
	"sync"

	"github.com/user/vigild/internal/types"
)

// Arena hands out cached UserState handles keyed by user identifier. It is
// the sole owner of the underlying per-user storage: every caller resolves
// through the arena, so two calls with the same ID share one handle and
// two different IDs never share anything. The lock covers only the map
// lookup/insert, never file I/O.
type Arena struct {
	root     string
	defaults SettingsDefaults

	mu      sync.Mutex
	handles map[types.UserID]*UserState
}

// NewArena creates an arena rooted at the data directory.
func NewArena(root string, defaults SettingsDefaults) *Arena {
	return &Arena{
		root:     root,
		defaults: defaults,
		handles:  make(map[types.UserID]*UserState),
	}
}

// Open returns the handle for the given user, creating it on first use.
// The backing directory is created lazily on first write, so opening an
// unknown user never fails.
func (a *Arena) Open(id types.UserID) types.UserState {
	a.mu.Lock()
	defer a.mu.Unlock()

	if h, ok := a.handles[id]; ok {
		return h
	}
	h := newUserState(filepath.Join(a.root, "users", string(id)), a.defaults)
	a.handles[id] = h
	return h
}
