package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-coqui-tts/internal/model"
	"github.com/example/go-coqui-tts/internal/server"
	"github.com/spf13/cobra"
)

var errHostExited = errors.New("model host exited unexpectedly")

// openHost is replaced in tests.
var openHost = model.Open

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the model and run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			host, err := openHost(sigCtx, cfg.Model, slog.Default())
			if err != nil {
				return err
			}
			defer func() {
				if err := host.Close(); err != nil {
					slog.Warn("close model host", slog.String("error", err.Error()))
				}
			}()

			ctx, cancel := context.WithCancelCause(sigCtx)
			defer cancel(nil)
			go watchHost(ctx, host, cancel)

			srv := server.New(cfg, host).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second).
				WithLogger(slog.Default())

			if err := srv.Start(ctx); err != nil {
				return err
			}
			if cause := context.Cause(ctx); errors.Is(cause, errHostExited) {
				return cause
			}
			return nil
		},
	}

	return cmd
}

// watchHost stops the server when the model process dies underneath it.
func watchHost(ctx context.Context, host model.Host, cancel context.CancelCauseFunc) {
	exited := model.Exited(host)
	if exited == nil {
		return
	}
	select {
	case <-exited:
		slog.Error("model host exited; shutting down")
		cancel(errHostExited)
	case <-ctx.Done():
	}
}
