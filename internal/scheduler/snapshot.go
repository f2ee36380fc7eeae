// internal/scheduler/snapshot.go
package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/user/vigild/internal/types"
)

// snapshot is the on-disk scheduler state, rewritten on every mutation and
// after every fire so a restart reconstructs the same schedule.
type snapshot struct {
	Users    []userSnapshot    `json:"users"`
	OneShots []oneShotSnapshot `json:"one_shots"`
}

type userSnapshot struct {
	UserID   types.UserID `json:"user_id"`
	Enabled  bool         `json:"enabled"`
	Interval string       `json:"interval"`
	NextFire time.Time    `json:"next_fire"`
}

type oneShotSnapshot struct {
	JobID  types.JobID  `json:"job_id"`
	UserID types.UserID `json:"user_id"`
	FireAt time.Time    `json:"fire_at"`
	Reason string       `json:"reason"`
}

// persistLocked writes the snapshot atomically. Caller must hold s.mu.
// A persist failure is logged, not propagated: losing the snapshot costs
// at most one schedule reconstruction, never a live timer.
func (s *Scheduler) persistLocked() {
	snap := snapshot{
		Users:    make([]userSnapshot, 0, len(s.users)),
		OneShots: make([]oneShotSnapshot, 0, len(s.oneShots)),
	}
	for id, job := range s.users {
		snap.Users = append(snap.Users, userSnapshot{
			UserID:   id,
			Enabled:  job.enabled,
			Interval: job.interval.String(),
			NextFire: job.nextFire,
		})
	}
	for _, shot := range s.oneShots {
		snap.OneShots = append(snap.OneShots, oneShotSnapshot{
			JobID:  shot.jobID,
			UserID: shot.userID,
			FireAt: shot.fireAt,
			Reason: shot.reason,
		})
	}

	if err := writeSnapshot(s.snapPath, &snap); err != nil {
		slog.Error("persist scheduler snapshot", "error", err)
	}
}

func writeSnapshot(path string, snap *snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp snapshot: %w", err)
	}
	return nil
}

func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &snapshot{}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Restore loads every active user's recurring job from the registry and
// settings store, resuming persisted next-fire times, and re-arms pending
// one-shots. A one-shot that came due during downtime fires shortly after
// start rather than being dropped. Call before Start.
func (s *Scheduler) Restore(reg types.Registry, arena types.StateArena) error {
	snap, err := readSnapshot(s.snapPath)
	if err != nil {
		return err
	}

	persisted := make(map[types.UserID]userSnapshot, len(snap.Users))
	for _, us := range snap.Users {
		persisted[us.UserID] = us
	}

	users, err := reg.List(types.StatusActive)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}

	s.mu.Lock()
	for _, u := range users {
		settings, err := arena.Open(u.UserID).Settings()
		if err != nil {
			slog.Error("load settings for scheduling", "user_id", string(u.UserID), "error", err)
			continue
		}
		var next time.Time
		if us, ok := persisted[u.UserID]; ok {
			next = us.NextFire
		}
		s.addUserLocked(u.UserID, settings.HeartbeatInterval, settings.HeartbeatEnabled, next)
	}

	now := time.Now()
	for _, p := range snap.OneShots {
		delay := p.FireAt.Sub(now)
		if delay < time.Second {
			delay = time.Second
		}
		jobID := p.JobID
		shot := &oneShot{
			jobID:  jobID,
			userID: p.UserID,
			fireAt: now.Add(delay),
			reason: p.Reason,
		}
		shot.timer = time.AfterFunc(delay, func() { s.fireOnce(jobID) })
		s.oneShots[jobID] = shot
	}

	s.persistLocked()
	s.mu.Unlock()

	slog.Info("scheduler restored", "users", len(users), "one_shots", len(snap.OneShots))
	return nil
}
