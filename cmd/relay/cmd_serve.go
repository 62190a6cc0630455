package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chriseon/relay/internal/webapi"
	"github.com/chriseon/relay/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

The API accepts runs (POST /api/runs), reports their state
(GET /api/runs, GET /api/runs/{id}), streams live progress as
server-sent events (GET /api/runs/{id}/events), and manages BYOK
provider keys (PUT /api/keys/{provider}).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(".")
			if err != nil {
				return err
			}
			defer eng.close()

			if addr != "" {
				eng.cfg.Server.Addr = addr
			}

			handlers := webapi.NewHandlers(eng.store, eng.bus, eng.queue, nil)
			srv := webserver.New(webserver.Config{
				Addr:           eng.cfg.Server.Addr,
				AllowedOrigins: eng.cfg.Server.AllowedOrigins,
			}, handlers)

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}
