package core

import "context"

// ContextProvider supplies the ordered retrieved chunks for document-QA
// requests. The pipeline treats the result as an opaque context sequence.
type ContextProvider interface {
	Retrieve(ctx context.Context, req Request) ([]Turn, error)
}

// ContextProviderFunc adapts a function to ContextProvider.
type ContextProviderFunc func(ctx context.Context, req Request) ([]Turn, error)

// Retrieve implements ContextProvider.
func (f ContextProviderFunc) Retrieve(ctx context.Context, req Request) ([]Turn, error) {
	return f(ctx, req)
}
