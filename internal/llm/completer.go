// Package llm abstracts the text-completion capability. The assistant only
// ever needs "prompt in, text out"; the model, provider, and transport live
// behind this interface.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Completer produces a text completion for a prompt. Prompts must only be
// built from redacted identities and token-stripped results.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// StubCompleter is a deterministic offline completer used in demos and
// tests. It echoes a short summary derived from the prompt instead of
// calling a model.
type StubCompleter struct{}

// Complete implements Completer.
func (StubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}

	head := prompt
	if idx := strings.IndexByte(head, '\n'); idx > 0 {
		head = head[:idx]
	}
	if len(head) > 120 {
		head = head[:120]
	}
	return "Summary: " + head, nil
}
