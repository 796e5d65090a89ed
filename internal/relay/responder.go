package relay

import (
	"context"
	"strings"
)

// Responder produces the assistant reply for one user prompt. The chat
// handler streams the reply back as token frames.
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// EchoResponder returns the prompt unchanged. Deterministic, used as the
// default when no model backend is configured and throughout the tests.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, prompt string) (string, error) {
	return prompt, nil
}

// splitTokens chops a reply into word-sized chunks, each keeping its
// trailing whitespace so concatenation reproduces the reply exactly.
func splitTokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, " ")
}
