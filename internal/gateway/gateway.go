// internal/gateway/gateway.go
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/vigild/internal/types"
)

// Inbound is one message arriving from the transport.
type Inbound struct {
	UserID      types.UserID
	DisplayName string
	Text        string

	// OnComplete receives the reply to send back, when there is one.
	OnComplete func(reply string)

	// Ctx is set by the gateway before the processor runs.
	Ctx context.Context
}

// Gateway manages per-user lanes with a global concurrency semaphore.
// Each user gets their own FIFO channel so their messages (commands
// included) are processed strictly in arrival order, while the semaphore
// limits total concurrent processing across all users.
type Gateway struct {
	lanes     map[types.UserID]chan *Inbound
	semaphore *semaphore.Weighted
	processor func(*Inbound) error
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a Gateway allowing up to maxConcurrent inbound messages to
// be processed simultaneously across all user lanes.
func New(maxConcurrent int64) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Gateway{
		lanes:     make(map[types.UserID]chan *Inbound),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// SetProcessor sets the function invoked for each dequeued message.
func (g *Gateway) SetProcessor(fn func(*Inbound) error) {
	g.processor = fn
}

// Start initialises the gateway's context. Must be called before Enqueue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
}

// Stop cancels the context, closes all lanes, and waits for in-flight
// processing to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.mu.Lock()
	for _, lane := range g.lanes {
		close(lane)
	}
	g.lanes = make(map[types.UserID]chan *Inbound)
	g.mu.Unlock()
	g.wg.Wait()
}

// Enqueue adds a message to the user's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (g *Gateway) Enqueue(in *Inbound) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	lane, exists := g.lanes[in.UserID]
	if !exists {
		lane = make(chan *Inbound, 100)
		g.lanes[in.UserID] = lane
		g.wg.Add(1)
		go g.processLane(in.UserID, lane)
	}

	select {
	case lane <- in:
		return nil
	default:
		return fmt.Errorf("queue full for user %s", in.UserID)
	}
}

// processLane drains a single user's lane, acquiring a semaphore slot
// before running the processor synchronously. Strict FIFO per user;
// cross-user parallelism bounded by the semaphore.
func (g *Gateway) processLane(userID types.UserID, lane chan *Inbound) {
	defer g.wg.Done()
	for {
		select {
		case in, ok := <-lane:
			if !ok {
				return
			}
			if err := g.semaphore.Acquire(g.ctx, 1); err != nil {
				return
			}
			if g.processor != nil {
				g.active.Add(1)
				in.Ctx = g.ctx
				if err := g.processor(in); err != nil {
					slog.Error("inbound processing failed", "user_id", string(userID), "error", err)
					if in.OnComplete != nil {
						in.OnComplete("Sorry, something went wrong processing your message.")
					}
				}
				g.active.Add(-1)
			}
			g.semaphore.Release(1)
		case <-g.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until every lane is drained or the timeout expires.
func (g *Gateway) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		idle := g.active.Load() == 0
		g.mu.Lock()
		if idle {
			for _, lane := range g.lanes {
				if len(lane) > 0 {
					idle = false
					break
				}
			}
		}
		g.mu.Unlock()
		if idle {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
