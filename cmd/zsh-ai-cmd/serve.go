package main

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	aicmd "github.com/npv12/zsh-ai-cmd"
	"github.com/npv12/zsh-ai-cmd/serve"
)

type serveFlags struct {
	socket  string
	verbose bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve suggestions to the zsh widget over a Unix socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(root.cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.socket, "socket", "", "socket path (default $ZSH_AI_CMD_SOCKET, $XDG_RUNTIME_DIR/zsh-ai-cmd.sock)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "log every request and response to stderr")
	return cmd
}

func runServe(cfg *aicmd.Config, opts *serveFlags) error {
	level := slog.LevelInfo
	if opts.verbose || cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	for _, w := range aicmd.ValidateConfig(cfg) {
		slog.Warn("config", "warning", w)
	}

	socketPath := opts.socket
	if socketPath == "" {
		socketPath = serve.SocketPath()
	}
	slog.Info("starting", "socket", socketPath, "provider", cfg.Provider)

	srv, err := serve.NewServer(socketPath, newStack(cfg).service)
	if err != nil {
		return err
	}
	defer srv.Close()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			slog.Info("shutting down")
			srv.Close()
		case <-done:
		}
	}()
	defer close(done)

	slog.Info("ready")
	if err := srv.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
