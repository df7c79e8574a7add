package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/config"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/engine"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/logger"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/runtime"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the execution engine WebSocket server",
	Long: `Start the HTTP server exposing the execution engine over WebSocket.

If the container daemon is unreachable the server still starts, but every
job submission fails fast with an "execution unavailable" event.

Examples:
  tesseracs serve
  tesseracs serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	eng, err := buildEngine(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(eng, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	return srv.Start(port)
}

// buildEngine connects to the container daemon. Daemon unavailability is
// not fatal for the process, only for job submission.
func buildEngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*engine.Engine, error) {
	rt, err := runtime.New(ctx, cfg.Engine.DockerHost, log)
	if err != nil {
		if errors.Is(err, runtime.ErrEngineUnavailable) {
			log.Warn("container engine unreachable, execution disabled", zap.Error(err))
			return engine.NewDisabled(cfg, log), nil
		}
		return nil, err
	}
	return engine.New(rt, cfg, log), nil
}
