package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/chriseon/relay/internal/config"
	"github.com/chriseon/relay/internal/sandbox"
)

// newInvokeWorkerCommand is the hidden child-process entry point used
// by the sandbox. It reads one invocation request from stdin (secret
// included; nothing sensitive touches argv or the environment) and
// writes progress frames to stdout. A non-nil error here exits non-zero
// and the parent records the stage as crashed.
func newInvokeWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:    "invoke-worker",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			registry, err := config.BuildRegistry(cfg)
			if err != nil {
				return err
			}
			return sandbox.RunWorker(cmd.Context(), registry, os.Stdin, os.Stdout)
		},
	}
}
