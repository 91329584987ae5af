package provider

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a provider name is not in the registry.
var ErrNotFound = errors.New("provider not found")

// Request is the provider-independent call payload. Context is optional
// support material the caller wants the provider to consider.
type Request struct {
	Prompt      string
	Context     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Response is the provider-independent call result.
type Response struct {
	Text string
}

// Caller dispatches a request to one provider family. Implementations own
// the wire format; the orchestrator treats this as an opaque capability.
// The context carries the per-call deadline.
type Caller interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// composePrompt folds optional support material into a single user prompt.
// Every caller uses the same framing so providers are interchangeable.
func composePrompt(req Request) string {
	if req.Context == "" {
		return req.Prompt
	}
	return "Context:\n" + req.Context + "\n\nQuestion: " + req.Prompt
}
