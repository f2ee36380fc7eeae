// internal/state/registry.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/vigild/internal/types"
)

// Registry is the JSON-file-backed user registry. It stores one record per
// known user in users/users.json; per-user data lives in users/<userID>/.
type Registry struct {
	root       string
	mu         sync.RWMutex
	onRegister func(*types.User)
}

// NewRegistry creates a file-backed Registry rooted at the given directory.
func NewRegistry(root string) *Registry {
	return &Registry{root: root}
}

// OnRegister sets a hook invoked whenever a previously unseen user is
// registered. The scheduler uses it to acquire a recurring job immediately.
func (r *Registry) OnRegister(fn func(*types.User)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRegister = fn
}

func (r *Registry) indexPath() string {
	return filepath.Join(r.root, "users", "users.json")
}

func (r *Registry) usersDir() string {
	return filepath.Join(r.root, "users")
}

// loadIndex reads users.json and returns a map keyed by UserID.
func (r *Registry) loadIndex() (map[types.UserID]*types.User, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.UserID]*types.User), nil
		}
		return nil, fmt.Errorf("read user index: %w", err)
	}

	var users []*types.User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("unmarshal user index: %w", err)
	}

	index := make(map[types.UserID]*types.User, len(users))
	for _, u := range users {
		index[u.UserID] = u
	}
	return index, nil
}

// saveIndex converts the map to a slice, marshals with indentation, and writes atomically.
func (r *Registry) saveIndex(index map[types.UserID]*types.User) error {
	users := make([]*types.User, 0, len(index))
	for _, u := range index {
		users = append(users, u)
	}

	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user index: %w", err)
	}

	if err := os.MkdirAll(r.usersDir(), 0o755); err != nil {
		return fmt.Errorf("create users dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := r.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, r.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// Register creates a record for the given identifier if none exists, or
// bumps last_seen_at on the existing one. It is idempotent; everything
// except last_seen_at is left untouched on repeat calls.
func (r *Registry) Register(id types.UserID, displayName string) (*types.User, error) {
	r.mu.Lock()

	index, err := r.loadIndex()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	if existing, ok := index[id]; ok {
		existing.LastSeenAt = now
		if err := r.saveIndex(index); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.mu.Unlock()
		return existing, nil
	}

	user := &types.User{
		UserID:       id,
		DisplayName:  displayName,
		RegisteredAt: now,
		LastSeenAt:   now,
		Status:       types.StatusActive,
	}
	index[id] = user

	if err := r.saveIndex(index); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	hook := r.onRegister
	r.mu.Unlock()

	// The hook runs outside the lock; it calls back into the scheduler.
	if hook != nil {
		hook(user)
	}
	return user, nil
}

// Get returns the record for the given identifier.
func (r *Registry) Get(id types.UserID) (*types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index, err := r.loadIndex()
	if err != nil {
		return nil, err
	}
	u, ok := index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUserNotFound, id)
	}
	return u, nil
}

// Touch bumps last_seen_at for an existing user.
func (r *Registry) Touch(id types.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, err := r.loadIndex()
	if err != nil {
		return err
	}
	u, ok := index[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUserNotFound, id)
	}
	u.LastSeenAt = time.Now()
	return r.saveIndex(index)
}

// List returns all users, filtered by status when one is given.
func (r *Registry) List(status types.UserStatus) ([]*types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index, err := r.loadIndex()
	if err != nil {
		return nil, err
	}

	users := make([]*types.User, 0, len(index))
	for _, u := range index {
		if status != "" && u.Status != status {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// SetStatus flips a user's lifecycle status. The caller is responsible for
// removing the user's recurring job when deactivating.
func (r *Registry) SetStatus(id types.UserID, status types.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, err := r.loadIndex()
	if err != nil {
		return err
	}
	u, ok := index[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUserNotFound, id)
	}
	u.Status = status
	return r.saveIndex(index)
}
