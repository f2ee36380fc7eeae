// internal/scheduler/scheduler.go
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/vigild/internal/types"
)

// Handler is the callback invoked when a user's heartbeat fires. reason is
// empty for recurring ticks and carries the one-shot reason otherwise.
type Handler func(userID types.UserID, reason string)

// WindowFunc reports whether heartbeats may run at the given time.
type WindowFunc func(time.Time) bool

// Request is a one-shot scheduling request fed back from the decision
// engine's call site. It arrives over a channel so an engine failure can
// never corrupt the job table directly.
type Request struct {
	UserID types.UserID
	Delay  time.Duration
	Reason string
}

// userJob is the live recurring entry for one user. Job identity is the
// user ID: a user has at most one recurring job at any time.
type userJob struct {
	entryID  cron.EntryID
	interval time.Duration
	enabled  bool
	nextFire time.Time
}

type oneShot struct {
	jobID  types.JobID
	userID types.UserID
	fireAt time.Time
	reason string
	timer  *time.Timer
}

// Scheduler owns one recurring cron entry per active user plus a table of
// one-shot timers. Cron runs every fire in its own goroutine, so a slow
// tick for one user never delays another. All table mutations persist a
// snapshot so a restart reconstructs the same schedule.
type Scheduler struct {
	handler  Handler
	inWindow WindowFunc
	snapPath string

	mu       sync.Mutex
	cron     *cron.Cron
	users    map[types.UserID]*userJob
	oneShots map[types.JobID]*oneShot

	requests chan Request
	done     chan struct{}
	started  bool
}

// New creates a Scheduler persisting its state to snapPath. inWindow may
// be nil, meaning heartbeats are allowed at any hour.
func New(handler Handler, inWindow WindowFunc, snapPath string) *Scheduler {
	if inWindow == nil {
		inWindow = func(time.Time) bool { return true }
	}
	return &Scheduler{
		handler:  handler,
		inWindow: inWindow,
		snapPath: snapPath,
		cron:     cron.New(),
		users:    make(map[types.UserID]*userJob),
		oneShots: make(map[types.JobID]*oneShot),
		requests: make(chan Request, 16),
		done:     make(chan struct{}),
	}
}

// Requests is the channel the engine call site sends one-shot scheduling
// requests into. Drained once Start has been called.
func (s *Scheduler) Requests() chan<- Request {
	return s.requests
}

// Start arms persisted one-shots, starts the cron ticker, and begins
// draining the request channel. Recurring jobs are added by the caller
// (one AddUser per active user) before or after Start.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.cron.Start()

	go func() {
		for {
			select {
			case req := <-s.requests:
				id := s.ScheduleOnce(req.UserID, req.Delay, req.Reason)
				slog.Info("scheduled one-shot from engine request",
					"user_id", string(req.UserID), "job_id", string(id), "reason", req.Reason)
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the cron ticker and all pending one-shot timers.
func (s *Scheduler) Stop() {
	close(s.done)
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, shot := range s.oneShots {
		shot.timer.Stop()
	}
}

// AddUser installs (or replaces) the recurring job for a user. next, when
// non-zero, is a persisted next-fire instant; a next in the past is
// advanced by whole intervals so a restart never double-fires or bursts.
func (s *Scheduler) AddUser(id types.UserID, interval time.Duration, enabled bool, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addUserLocked(id, interval, enabled, next)
	s.persistLocked()
}

func (s *Scheduler) addUserLocked(id types.UserID, interval time.Duration, enabled bool, next time.Time) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	now := time.Now()
	if next.IsZero() {
		next = now.Add(interval)
	}
	for !next.After(now) {
		next = next.Add(interval)
	}

	if existing, ok := s.users[id]; ok {
		s.cron.Remove(existing.entryID)
	}

	uid := id
	entryID := s.cron.Schedule(
		firstThenEvery{first: next, every: interval},
		cron.FuncJob(func() { s.fire(uid) }),
	)
	s.users[id] = &userJob{
		entryID:  entryID,
		interval: interval,
		enabled:  enabled,
		nextFire: next,
	}
	slog.Info("scheduled user heartbeat",
		"user_id", string(id), "interval", interval.String(),
		"enabled", enabled, "next_fire", next.Format(time.RFC3339))
}

// fire runs on a recurring tick, in cron's per-job goroutine. The enabled
// flag and active-hour window are checked here so a skipped tick still
// advances next_fire_at on its normal cadence.
func (s *Scheduler) fire(id types.UserID) {
	s.mu.Lock()
	job, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	enabled := job.enabled
	job.nextFire = time.Now().Add(job.interval)
	s.persistLocked()
	s.mu.Unlock()

	if !enabled {
		slog.Info("heartbeat skipped, disabled", "user_id", string(id))
		return
	}
	if !s.inWindow(time.Now()) {
		slog.Info("heartbeat skipped, outside active hours", "user_id", string(id))
		return
	}
	s.handler(id, "")
}

// Pause disables a user's heartbeat without touching the timer: the entry
// keeps firing on schedule and the callback skips, which preserves a
// stable next_fire_at across pause/resume cycles.
func (s *Scheduler) Pause(id types.UserID) error {
	return s.setEnabled(id, false)
}

// Resume re-enables a paused heartbeat.
func (s *Scheduler) Resume(id types.UserID) error {
	return s.setEnabled(id, true)
}

func (s *Scheduler) setEnabled(id types.UserID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUserNotFound, id)
	}
	job.enabled = enabled
	s.persistLocked()
	slog.Info("heartbeat toggled", "user_id", string(id), "enabled", enabled)
	return nil
}

// Reschedule atomically replaces the user's recurring job with one on the
// new interval, effective from the next fire onward.
func (s *Scheduler) Reschedule(id types.UserID, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUserNotFound, id)
	}
	s.addUserLocked(id, interval, job.enabled, time.Now().Add(interval))
	s.persistLocked()
	return nil
}

// Remove cancels the user's recurring job, e.g. when the user goes
// inactive. Pending one-shots are left to fire.
func (s *Scheduler) Remove(id types.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.users[id]
	if !ok {
		return
	}
	s.cron.Remove(job.entryID)
	delete(s.users, id)
	s.persistLocked()
	slog.Info("removed user from scheduler", "user_id", string(id))
}

// ScheduleOnce arms a one-shot job independent of the recurring one. It
// fires exactly once, even for a paused user: an explicitly requested
// reminder must not be swallowed by a disabled heartbeat.
func (s *Scheduler) ScheduleOnce(id types.UserID, delay time.Duration, reason string) types.JobID {
	if delay < 0 {
		delay = 0
	}
	jobID := types.NewJobID()

	s.mu.Lock()
	defer s.mu.Unlock()
	shot := &oneShot{
		jobID:  jobID,
		userID: id,
		fireAt: time.Now().Add(delay),
		reason: reason,
	}
	shot.timer = time.AfterFunc(delay, func() { s.fireOnce(jobID) })
	s.oneShots[jobID] = shot
	s.persistLocked()
	return jobID
}

func (s *Scheduler) fireOnce(jobID types.JobID) {
	s.mu.Lock()
	shot, ok := s.oneShots[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.oneShots, jobID)
	s.persistLocked()
	s.mu.Unlock()

	slog.Info("one-shot fired", "user_id", string(shot.userID), "job_id", string(jobID), "reason", shot.reason)
	s.handler(shot.userID, shot.reason)
}

// Status reports the recurring job state for one user.
func (s *Scheduler) Status(id types.UserID) types.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.users[id]
	if !ok {
		return types.JobStatus{}
	}
	return types.JobStatus{
		Enabled:  job.enabled,
		Interval: job.interval,
		NextFire: job.nextFire,
		Exists:   true,
	}
}

// PendingOneShots returns the number of armed one-shot jobs for a user.
func (s *Scheduler) PendingOneShots(id types.UserID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, shot := range s.oneShots {
		if shot.userID == id {
			n++
		}
	}
	return n
}

// firstThenEvery fires once at a fixed instant, then every interval. It
// lets a restart resume a persisted next-fire instead of resetting the
// cadence.
type firstThenEvery struct {
	first time.Time
	every time.Duration
}

func (s firstThenEvery) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return t.Add(s.every)
}
