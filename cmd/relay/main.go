package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess   = 0 // Run completed
	ExitRunFailed = 1 // The pipeline ran but ended in a failed state
	ExitError     = 2 // Configuration or runtime error
)

// RunFailedError indicates the pipeline executed but reached a failed
// terminal state.
type RunFailedError struct {
	Message string
}

func (e *RunFailedError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var runErr *RunFailedError
		if errors.As(err, &runErr) {
			os.Exit(ExitRunFailed)
		}

		os.Exit(ExitError)
	}
}
