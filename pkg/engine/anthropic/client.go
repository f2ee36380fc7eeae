package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/vigild/pkg/engine"
)

const (
	apiVersion      = "2023-06-01"
	directMaxTokens = 2048
)

// modelNames maps the short model IDs users select to API model names.
var modelNames = map[string]string{
	"sonnet-4":   "claude-sonnet-4-20250514",
	"sonnet-4.5": "claude-sonnet-4-5-20250929",
	"opus-4.5":   "claude-opus-4-5-20251101",
	"haiku-3.5":  "claude-3-5-haiku-20241022",
	"haiku-3":    "claude-3-haiku-20240307",
}

// Client implements engine.Provider over the Anthropic Messages API. In
// heartbeat mode the model is offered a send_message tool; not calling it
// means staying silent.
type Client struct {
	config     *engine.Config
	httpClient *http.Client
}

// New creates a Messages API client with the given configuration.
func New(config *engine.Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type messagesRequest struct {
	Model     string           `json:"model"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system,omitempty"`
	Messages  []requestMessage `json:"messages"`
	Tools     []tool           `json:"tools,omitempty"`
}

type requestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

var heartbeatTools = []tool{
	{
		Name:        "send_message",
		Description: "Send a message to the user. Use this to check in, offer help, or gently prompt. You may also choose NOT to call this tool if silence is more appropriate.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string","description":"The message to send"}},"required":["message"]}`),
	},
	{
		Name:        "save_note",
		Description: "Save a note to your private scratchpad for future heartbeats.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"note":{"type":"string","description":"The note to remember"}},"required":["note"]}`),
	},
	{
		Name:        "schedule_checkin",
		Description: "Schedule a one-off check-in after a delay, e.g. to follow up on something the user mentioned.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"delay_minutes":{"type":"integer","description":"Minutes from now"},"reason":{"type":"string","description":"Why to check in"}},"required":["delay_minutes","reason"]}`),
	},
}

// DecideHeartbeat asks the model whether to reach out. The conversation and
// notes ride in the system prompt; the single user turn is the heartbeat
// instruction, mirroring how the model was prompted to treat silence as a
// first-class outcome.
func (c *Client) DecideHeartbeat(ctx context.Context, req *engine.Request) (*engine.Decision, error) {
	body := messagesRequest{
		Model:     apiModel(req.ModelID),
		MaxTokens: c.maxTokens(),
		System:    buildHeartbeatSystem(req),
		Messages: []requestMessage{{
			Role:    "user",
			Content: "This is a heartbeat check. Review the conversation history and your notes. Decide whether to reach out to the user or stay silent.",
		}},
		Tools: heartbeatTools,
	}

	resp, err := c.post(ctx, &body)
	if err != nil {
		return nil, err
	}

	dec := &engine.Decision{
		Action: engine.ActionSilent,
		Usage: engine.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			dec.Reasoning += block.Text
		case "tool_use":
			applyToolUse(block, &dec.Text, &dec.Notes, &dec.Schedules)
			if block.Name == "send_message" {
				dec.Action = engine.ActionSend
			}
		}
	}
	return dec, nil
}

// RespondDirect produces a plain reply to the user's latest message. The
// conversation rides as alternating turns; notes ride in the system prompt.
func (c *Client) RespondDirect(ctx context.Context, req *engine.Request) (*engine.Reply, error) {
	body := messagesRequest{
		Model:     apiModel(req.ModelID),
		MaxTokens: directMaxTokens,
		System:    buildDirectSystem(req),
		Messages:  conversationTurns(req.Messages),
	}

	resp, err := c.post(ctx, &body)
	if err != nil {
		return nil, err
	}

	reply := &engine.Reply{
		Usage: engine.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			reply.Text += block.Text
		case "tool_use":
			applyToolUse(block, nil, &reply.Notes, &reply.Schedules)
		}
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, body *messagesRequest) (*messagesResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}
	return &parsed, nil
}

func (c *Client) maxTokens() int {
	if c.config.MaxTokens > 0 {
		return c.config.MaxTokens
	}
	return 1024
}

func apiModel(id string) string {
	if full, ok := modelNames[id]; ok {
		return full
	}
	return id
}

// applyToolUse decodes one tool_use block into the decision/reply fields.
// Unknown tools are ignored rather than failing the whole call.
func applyToolUse(block contentBlock, text *string, notes *[]string, schedules *[]engine.ScheduleRequest) {
	switch block.Name {
	case "send_message":
		var in struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(block.Input, &in) == nil && text != nil {
			*text = in.Message
		}
	case "save_note":
		var in struct {
			Note string `json:"note"`
		}
		if json.Unmarshal(block.Input, &in) == nil && in.Note != "" {
			*notes = append(*notes, in.Note)
		}
	case "schedule_checkin":
		var in struct {
			DelayMinutes int    `json:"delay_minutes"`
			Reason       string `json:"reason"`
		}
		if json.Unmarshal(block.Input, &in) == nil && in.DelayMinutes > 0 {
			*schedules = append(*schedules, engine.ScheduleRequest{
				Delay:  time.Duration(in.DelayMinutes) * time.Minute,
				Reason: in.Reason,
			})
		}
	}
}

func buildHeartbeatSystem(req *engine.Request) string {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	b.WriteString("\n\nCurrent time: ")
	b.WriteString(req.Now.Format(time.RFC3339))
	b.WriteString("\n")

	if len(req.Notes) > 0 {
		b.WriteString("\n## Your Notes (Scratchpad):\n")
		for _, n := range req.Notes {
			fmt.Fprintf(&b, "- [%s] %s\n", n.Timestamp.Format(time.RFC3339), n.Text)
		}
	}

	b.WriteString("\n## Recent Conversation:\n")
	if len(req.Messages) == 0 {
		b.WriteString("(No conversation history yet)\n")
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
	}
	return b.String()
}

func buildDirectSystem(req *engine.Request) string {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	b.WriteString("\n\nCurrent time: ")
	b.WriteString(req.Now.Format(time.RFC3339))
	b.WriteString("\n")

	if len(req.Notes) > 0 {
		b.WriteString("\n## Your Notes (Scratchpad):\n")
		for _, n := range req.Notes {
			fmt.Fprintf(&b, "- [%s] %s\n", n.Timestamp.Format(time.RFC3339), n.Text)
		}
	}
	return b.String()
}

// conversationTurns converts history into alternating API turns, coalescing
// consecutive same-role entries. The API requires the first turn to be from
// the user, so any leading assistant entries are folded into the system-side
// view by dropping them here.
func conversationTurns(messages []engine.Message) []requestMessage {
	var turns []requestMessage
	for _, m := range messages {
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		if len(turns) == 0 && role == "assistant" {
			continue
		}
		if len(turns) > 0 && turns[len(turns)-1].Role == role {
			turns[len(turns)-1].Content += "\n" + m.Content
			continue
		}
		turns = append(turns, requestMessage{Role: role, Content: m.Content})
	}
	if len(turns) == 0 {
		turns = append(turns, requestMessage{Role: "user", Content: "(empty message)"})
	}
	return turns
}
