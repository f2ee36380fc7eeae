// internal/context/engine_test.go
package context

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/vigild/internal/types"
	"github.com/user/vigild/pkg/engine"
)

func entries(texts ...string) []types.ConversationEntry {
	out := make([]types.ConversationEntry, 0, len(texts))
	for i, text := range texts {
		out = append(out, types.ConversationEntry{
			Timestamp: time.Now().Add(time.Duration(i) * time.Minute),
			Role:      "user",
			Content:   text,
		})
	}
	return out
}

func TestBuildRequest_KeepsEverythingUnderBudget(t *testing.T) {
	e, err := New(100_000, "")
	if err != nil {
		t.Fatal(err)
	}

	req, est := e.BuildRequest("sonnet-4", engine.ModeHeartbeat, entries("one", "two", "three"), nil)
	if len(req.Messages) != 3 {
		t.Errorf("expected all 3 messages kept, got %d", len(req.Messages))
	}
	if req.Messages[0].Content != "one" || req.Messages[2].Content != "three" {
		t.Error("message order changed")
	}
	if req.Mode != engine.ModeHeartbeat {
		t.Errorf("mode = %s", req.Mode)
	}
	if req.SystemPrompt == "" {
		t.Error("system prompt missing")
	}
	if est <= 0 {
		t.Error("estimate should be positive")
	}
}

func TestBuildRequest_DropsOldestOverBudget(t *testing.T) {
	// A tiny budget forces the walk to stop early. A short prompt file
	// keeps the budget arithmetic predictable.
	path := filepath.Join(t.TempDir(), "system.md")
	if err := os.WriteFile(path, []byte("Be brief."), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := New(100, path)
	if err != nil {
		t.Fatal(err)
	}

	var texts []string
	for i := 0; i < 50; i++ {
		texts = append(texts, fmt.Sprintf("message number %d with some padding words", i))
	}
	req, est := e.BuildRequest("sonnet-4", engine.ModeDirect, entries(texts...), nil)
	if len(req.Messages) >= 50 {
		t.Fatalf("expected trimming, kept %d", len(req.Messages))
	}
	if est > 100 {
		t.Errorf("estimate %d exceeds budget", est)
	}
	// The kept slice must be the newest tail, still oldest first.
	if n := len(req.Messages); n > 0 {
		last := req.Messages[n-1].Content
		if !strings.Contains(last, "number 49") {
			t.Errorf("newest message dropped, tail is %q", last)
		}
	}
}

func TestBuildRequest_CapsNotes(t *testing.T) {
	e, err := New(100_000, "")
	if err != nil {
		t.Fatal(err)
	}

	var notes []types.Note
	for i := 0; i < 15; i++ {
		notes = append(notes, types.Note{Timestamp: time.Now(), Text: fmt.Sprintf("note %d", i)})
	}
	req, _ := e.BuildRequest("sonnet-4", engine.ModeHeartbeat, nil, notes)
	if len(req.Notes) != 10 {
		t.Fatalf("expected 10 notes kept, got %d", len(req.Notes))
	}
	if req.Notes[0].Text != "note 5" || req.Notes[9].Text != "note 14" {
		t.Errorf("expected the newest 10 notes, got %q..%q", req.Notes[0].Text, req.Notes[9].Text)
	}
}

func TestNew_PromptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.md")
	if err := os.WriteFile(path, []byte("custom persona"), 0o644); err != nil {
		t.Fatal(err)
	}

	e, err := New(1000, path)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := e.BuildRequest("sonnet-4", engine.ModeHeartbeat, nil, nil)
	if req.SystemPrompt != "custom persona" {
		t.Errorf("prompt file not loaded, got %q", req.SystemPrompt)
	}
}

func TestNew_MissingPromptFileFallsBack(t *testing.T) {
	e, err := New(1000, filepath.Join(t.TempDir(), "absent.md"))
	if err != nil {
		t.Fatal(err)
	}
	req, _ := e.BuildRequest("sonnet-4", engine.ModeHeartbeat, nil, nil)
	if req.SystemPrompt == "" {
		t.Error("expected fallback prompt")
	}
}
