package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/chriseon/relay/internal/provider"
)

// RunWorker is the child-process side of the sandbox. It reads a single
// Request from stdin, invokes the matching adapter, and writes NDJSON
// frames to stdout. Provider failures are reported as an error frame
// with a zero exit; only infrastructure problems (unreadable stdin,
// unwritable stdout) return a non-nil error, which the command layer
// turns into a non-zero exit the parent classifies as a crash.
func RunWorker(ctx context.Context, registry *provider.Registry, stdin io.Reader, stdout io.Writer) error {
	var req Request
	if err := json.NewDecoder(stdin).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	enc := json.NewEncoder(stdout)

	adapter, err := registry.Lookup(req.Provider)
	if err != nil {
		return enc.Encode(frame{Kind: "error", Error: err.Error()})
	}

	var stream provider.StreamFunc
	if req.Stream {
		stream = func(chunk string) {
			_ = enc.Encode(frame{Kind: "chunk", Text: chunk})
		}
	}

	resp, err := adapter.Invoke(ctx, &provider.Request{
		Model:             req.Model,
		Instructions:      req.Instructions,
		Input:             req.Input,
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		TopP:              req.TopP,
		MaxToolIterations: req.MaxToolIterations,
	}, req.Secret, stream)
	if err != nil {
		return enc.Encode(frame{Kind: "error", Error: err.Error()})
	}

	return enc.Encode(frame{Kind: "result", Text: resp.Text, Usage: &resp.Usage})
}
