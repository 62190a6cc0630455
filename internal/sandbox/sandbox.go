// Package sandbox isolates one provider invocation behind a fault
// boundary. The default boundary is a child OS process running the
// relay binary's worker subcommand: a hang is cut off by a wall-clock
// timeout, a crash becomes a structured failure with an exit code, and
// neither can take down the orchestrator.
package sandbox

import (
	"fmt"

	"github.com/chriseon/relay/internal/models"
)

// FailureKind classifies how an isolated invocation failed.
type FailureKind string

const (
	// KindTimeout: the call exceeded its wall-clock budget and the
	// isolation unit was forcibly terminated.
	KindTimeout FailureKind = "timeout"

	// KindCrash: the isolation unit terminated abnormally (non-zero
	// exit, signal) without reporting a result.
	KindCrash FailureKind = "crash"

	// KindProvider: the provider call itself failed (API error, bad
	// response); the isolation unit reported it and exited cleanly.
	KindProvider FailureKind = "provider"
)

// Failure is a structured invocation failure. It is the only error
// type Runner.Run returns for failures inside the boundary.
type Failure struct {
	Kind     FailureKind
	ExitCode int
	Detail   string
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindTimeout:
		return f.Detail
	case KindCrash:
		return fmt.Sprintf("provider process exited unexpectedly (exitcode=%d)", f.ExitCode)
	default:
		return f.Detail
	}
}

// Request is the full invocation payload handed across the isolation
// boundary. The secret travels on stdin with the rest of the request,
// never in argv or the environment.
type Request struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	Instructions string   `json:"instructions"`
	Input        string   `json:"input"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	TopP         *float64 `json:"top_p,omitempty"`

	MaxToolIterations int `json:"max_tool_iterations,omitempty"`

	Secret string `json:"secret"`
	Stream bool   `json:"stream,omitempty"`
}

// Result is a successful invocation outcome.
type Result struct {
	Text  string       `json:"text"`
	Usage models.Usage `json:"usage"`
}

// frame is one NDJSON message on the worker's stdout.
type frame struct {
	Kind  string        `json:"kind"` // "chunk", "result", or "error"
	Text  string        `json:"text,omitempty"`
	Usage *models.Usage `json:"usage,omitempty"`
	Error string        `json:"error,omitempty"`
}
