// internal/ledger/ledger.go
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/vigild/internal/types"
)

// Ledger is the shared append-only usage log, one JSON line per decision
// call, at <data>/usage.jsonl. Appends are serialized by a mutex so lines
// from concurrent ticks never interleave; aggregation reads a point-in-time
// copy of the file and folds over it without holding the write lock.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// New creates a ledger backed by the given file path.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Record appends one usage record. A write failure is retried once and
// then propagated: silent loss of cost data is worse than a visible error.
func (l *Ledger) Record(rec *types.UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.append(rec)
	if err != nil {
		err = l.append(rec)
	}
	return err
}

func (l *Ledger) append(rec *types.UsageRecord) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// Aggregate folds all of one user's records inside the window. An empty or
// missing ledger yields zero totals, never an error.
func (l *Ledger) Aggregate(id types.UserID, w types.Window) (*types.UsageTotals, error) {
	totals := &types.UsageTotals{UserID: id}
	cutoff := w.Cutoff(time.Now())

	err := l.fold(func(rec *types.UsageRecord) {
		if rec.UserID != id || rec.Timestamp.Before(cutoff) {
			return
		}
		totals.Cost += rec.Cost
		totals.InputTokens += rec.InputTokens
		totals.OutputTokens += rec.OutputTokens
		totals.Requests++
	})
	if err != nil {
		return nil, err
	}
	totals.Cost = round6(totals.Cost)
	return totals, nil
}

// AggregateAll folds the window for every user seen in the ledger, sorted
// by cost descending. It is the only cross-user read and is exposed only
// to the administrative CLI, never to a per-user command handler.
func (l *Ledger) AggregateAll(w types.Window) ([]*types.UsageTotals, error) {
	cutoff := w.Cutoff(time.Now())
	byUser := make(map[types.UserID]*types.UsageTotals)

	err := l.fold(func(rec *types.UsageRecord) {
		if rec.Timestamp.Before(cutoff) {
			return
		}
		t, ok := byUser[rec.UserID]
		if !ok {
			t = &types.UsageTotals{UserID: rec.UserID}
			byUser[rec.UserID] = t
		}
		t.Cost += rec.Cost
		t.InputTokens += rec.InputTokens
		t.OutputTokens += rec.OutputTokens
		t.Requests++
	})
	if err != nil {
		return nil, err
	}

	out := make([]*types.UsageTotals, 0, len(byUser))
	for _, t := range byUser {
		t.Cost = round6(t.Cost)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cost > out[j].Cost })
	return out, nil
}

// fold scans the ledger line by line. Unparseable lines are skipped so one
// corrupt entry cannot take down reporting. The file handle gives the
// reader a consistent view of everything appended before the scan began.
func (l *Ledger) fold(fn func(*types.UsageRecord)) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec types.UsageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		fn(&rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan ledger: %w", err)
	}
	return nil
}
