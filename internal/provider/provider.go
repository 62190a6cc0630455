// Package provider defines the uniform invocation capability for LLM
// providers and the adapters implementing it. One interface, N
// independent implementations, selected through a registry by provider
// name. Provider-specific logic stays inside the adapter.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chriseon/relay/internal/models"
)

// Request is one generation request against a provider.
type Request struct {
	Model        string   `json:"model"`
	Instructions string   `json:"instructions"`
	Input        string   `json:"input"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`

	// MaxToolIterations bounds tool-use round trips for adapters that
	// support tool calling. Adapters without a tool loop ignore it.
	MaxToolIterations int `json:"max_tool_iterations,omitempty"`
}

// Response is the completed generation result. Usage should be
// populated even on partial success when the provider reports it.
type Response struct {
	Text  string       `json:"text"`
	Usage models.Usage `json:"usage"`
}

// StreamFunc receives text chunks as they arrive from a streaming
// provider. Chunks are delivered in arrival order from a single
// goroutine.
type StreamFunc func(chunk string)

// Adapter is the capability a provider exposes: generate text for a
// prompt. stream may be nil; adapters that cannot stream ignore it and
// return the full response in one piece.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, req *Request, secret string, stream StreamFunc) (*Response, error)
}

// ErrUnknownProvider is returned by the registry for unregistered
// provider names.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps provider names to adapters. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its name, replacing any previous
// registration.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Lookup returns the adapter for a provider name.
func (r *Registry) Lookup(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
