package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chriseon/relay/internal/models"
)

// MockAdapter is a deterministic in-memory adapter for tests and for
// exercising the pipeline without spending provider quota.
type MockAdapter struct {
	// NameOverride replaces the default "mock" name.
	NameOverride string

	// Reply, when set, is returned verbatim; otherwise the adapter
	// echoes a canned response including the input.
	Reply string

	// ChunkSize > 0 splits the reply into chunks of that many bytes and
	// feeds them to the stream callback.
	ChunkSize int

	// Delay is slept per invocation, for timeout tests.
	Delay time.Duration

	// Err, when set, fails every invocation.
	Err error
}

// NewMockAdapter returns a mock with sensible defaults.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{ChunkSize: 16}
}

func (m *MockAdapter) Name() string {
	if m.NameOverride != "" {
		return m.NameOverride
	}
	return "mock"
}

// Invoke implements Adapter.
func (m *MockAdapter) Invoke(ctx context.Context, req *Request, _ string, stream StreamFunc) (*Response, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := m.Reply
	if text == "" {
		text = fmt.Sprintf("Mock %s response for: %s", req.Model, firstLine(req.Input))
	}

	if stream != nil && m.ChunkSize > 0 {
		for i := 0; i < len(text); i += m.ChunkSize {
			end := min(i+m.ChunkSize, len(text))
			stream(text[i:end])
		}
	}

	return &Response{
		Text: text,
		Usage: models.Usage{
			InputTokens:  len(strings.Fields(req.Input)),
			OutputTokens: len(strings.Fields(text)),
		},
	}, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// ErrMockFailure is a canned failure for tests.
var ErrMockFailure = errors.New("mock provider failure")

var _ Adapter = (*MockAdapter)(nil)
