package engine

import "context"

// Provider is the decision-engine boundary. Implementations handle
// protocol-specific details such as request formatting, authentication,
// and response parsing.
type Provider interface {
	// DecideHeartbeat asks the engine whether to proactively message the
	// user. A silent decision still carries usage counts.
	DecideHeartbeat(ctx context.Context, req *Request) (*Decision, error)

	// RespondDirect produces a reply to a message the user just sent.
	RespondDirect(ctx context.Context, req *Request) (*Reply, error)
}

// Config holds common configuration for engine providers.
type Config struct {
	BaseURL   string
	APIKey    string
	MaxTokens int
}
