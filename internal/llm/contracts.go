package llm

import "context"

// CompletionRequest is one prompt sent to a language model.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
	// ForceJSON asks the provider for a JSON-object response where supported.
	ForceJSON bool
}

// Completer is the language-model capability the pipeline depends on. It is
// expected, not required, to return JSON for structured prompts; callers
// must tolerate anything.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
