// internal/context/engine.go
package context

import (
	"fmt"
	"os"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/vigild/internal/types"
	"github.com/user/vigild/pkg/engine"
)

// maxNotes bounds how many scratchpad entries ride along with a request.
const maxNotes = 10

const fallbackPrompt = `You are Vigil, a proactive companion for one user.

You run on a heartbeat, periodically reviewing the conversation and your
notes, and you can choose whether to send a message or stay silent.

Be warm, patient, and genuinely helpful. No pressure, no productivity
guilt. Just a supportive presence.`

// Engine assembles token-budgeted engine requests from a user's recent
// messages and notes.
type Engine struct {
	tokenizer    *tiktoken.Tiktoken
	maxTokens    int
	systemPrompt string
}

// New creates a context engine. maxTokens bounds the total estimated input
// size of a request. promptPath points at a system prompt file; a missing
// file falls back to the built-in prompt.
func New(maxTokens int, promptPath string) (*Engine, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("get tokenizer: %w", err)
	}

	prompt := fallbackPrompt
	if promptPath != "" {
		if data, err := os.ReadFile(promptPath); err == nil {
			prompt = string(data)
		}
	}

	return &Engine{
		tokenizer:    enc,
		maxTokens:    maxTokens,
		systemPrompt: prompt,
	}, nil
}

// countTokens returns the token count for a string.
func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// BuildRequest assembles an engine request. The caller has already applied
// the user's max_context_messages at read time; this pass additionally
// drops the oldest messages if the estimated token total exceeds the
// budget. Returns the request and the estimated input token count.
func (e *Engine) BuildRequest(
	modelID string,
	mode engine.Mode,
	entries []types.ConversationEntry,
	notes []types.Note,
) (*engine.Request, int) {
	if len(notes) > maxNotes {
		notes = notes[len(notes)-maxNotes:]
	}

	used := e.countTokens(e.systemPrompt)
	for _, n := range notes {
		used += e.countTokens(n.Text)
	}

	// Walk newest to oldest, keeping messages while the budget holds.
	keepFrom := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		t := e.countTokens(entries[i].Content)
		if used+t > e.maxTokens {
			break
		}
		used += t
		keepFrom = i
	}
	entries = entries[keepFrom:]

	req := &engine.Request{
		ModelID:      modelID,
		Messages:     make([]engine.Message, 0, len(entries)),
		Notes:        make([]engine.Note, 0, len(notes)),
		Now:          time.Now(),
		Mode:         mode,
		SystemPrompt: e.systemPrompt,
	}
	for _, m := range entries {
		req.Messages = append(req.Messages, engine.Message{
			Timestamp: m.Timestamp,
			Role:      m.Role,
			Content:   m.Content,
		})
	}
	for _, n := range notes {
		req.Notes = append(req.Notes, engine.Note{
			Timestamp: n.Timestamp,
			Text:      n.Text,
		})
	}
	return req, used
}
