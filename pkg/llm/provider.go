package llm

import "context"

// Completion is a raw provider response before cost accounting.
type Completion struct {
	Content   string
	TokensIn  int
	TokensOut int
}

// Provider is the vendor boundary. Implementations translate one
// system+user prompt pair into a completion and classify their own
// failures into the llm error taxonomy.
type Provider interface {
	Complete(ctx context.Context, model, system, user string, maxTokens int) (*Completion, error)
}
