package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/chriseon/relay/internal/provider"
)

// DefaultTimeout is the wall-clock budget per provider call.
const DefaultTimeout = 45 * time.Second

// killGrace is how long a timed-out child gets between cancel and
// SIGKILL before Wait gives up on it.
const killGrace = 2 * time.Second

// Runner executes sandboxed invocations. The zero value is not usable;
// use NewRunner.
type Runner struct {
	timeout  time.Duration
	inline   bool
	registry *provider.Registry
	command  []string
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout overrides the wall-clock budget.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithInline disables process isolation and runs the adapter in this
// process, still under the timeout. For environments where spawning is
// unavailable; crash isolation is lost.
func WithInline(registry *provider.Registry) Option {
	return func(r *Runner) {
		r.inline = true
		r.registry = registry
	}
}

// WithCommand sets the argv used to spawn the worker process.
// Typically [the relay binary, "invoke-worker"].
func WithCommand(argv ...string) Option {
	return func(r *Runner) { r.command = argv }
}

// WithLogger sets the logger used for crash reporting.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a sandbox runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes one provider invocation inside the isolation boundary.
// onChunk, when non-nil, receives streamed text in arrival order.
// Failures inside the boundary come back as *Failure; any other error
// is an infrastructure problem in the runner itself.
func (r *Runner) Run(ctx context.Context, req *Request, onChunk func(string)) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.inline {
		return r.runInline(ctx, req, onChunk)
	}
	return r.runProcess(ctx, req, onChunk)
}

func (r *Runner) runProcess(ctx context.Context, req *Request, onChunk func(string)) (*Result, error) {
	if len(r.command) == 0 {
		return nil, errors.New("sandbox: no worker command configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox: encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.WaitDelay = killGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4096}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: start worker: %w", err)
	}

	// Feed the request without blocking on a child that never reads.
	go func() {
		_, _ = stdin.Write(payload)
		_ = stdin.Close()
	}()

	var (
		result      *Result
		providerErr string
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			// Garbage on stdout means a misbehaving worker; keep
			// draining so Wait can observe the real exit status.
			continue
		}
		switch f.Kind {
		case "chunk":
			if onChunk != nil {
				onChunk(f.Text)
			}
		case "result":
			res := &Result{Text: f.Text}
			if f.Usage != nil {
				res.Usage = *f.Usage
			}
			result = res
		case "error":
			providerErr = f.Error
		}
	}

	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		r.logger.Warn("provider call timed out",
			"provider", req.Provider, "model", req.Model, "timeout", r.timeout)
		return nil, &Failure{
			Kind:   KindTimeout,
			Detail: fmt.Sprintf("timeout after %s", r.timeout),
		}
	}

	if providerErr != "" {
		return nil, &Failure{Kind: KindProvider, Detail: providerErr}
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		// Silent crashes are unacceptable: always log provider, model,
		// and exit code.
		r.logger.Error("provider process crashed",
			"provider", req.Provider, "model", req.Model,
			"exitcode", exitCode, "stderr", stderr.String())
		return nil, &Failure{Kind: KindCrash, ExitCode: exitCode}
	}

	if result == nil {
		r.logger.Error("provider process exited without result",
			"provider", req.Provider, "model", req.Model, "exitcode", 0)
		return nil, &Failure{Kind: KindCrash, ExitCode: 0}
	}

	return result, nil
}

func (r *Runner) runInline(ctx context.Context, req *Request, onChunk func(string)) (*Result, error) {
	if r.registry == nil {
		return nil, errors.New("sandbox: inline mode requires a registry")
	}

	adapter, err := r.registry.Lookup(req.Provider)
	if err != nil {
		return nil, &Failure{Kind: KindProvider, Detail: err.Error()}
	}

	var stream provider.StreamFunc
	if onChunk != nil && req.Stream {
		stream = onChunk
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
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Failure{
				Kind:   KindTimeout,
				Detail: fmt.Sprintf("timeout after %s", r.timeout),
			}
		}
		return nil, &Failure{Kind: KindProvider, Detail: err.Error()}
	}

	return &Result{Text: resp.Text, Usage: resp.Usage}, nil
}

// limitedWriter keeps the first n bytes and drops the rest.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	if len(p) > l.n {
		_, err := l.w.Write(p[:l.n])
		l.n = 0
		return len(p), err
	}
	l.n -= len(p)
	return l.w.Write(p)
}
