package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Gurpartap/carecompanion/internal/devserver"
	"github.com/Gurpartap/carecompanion/transcribe"
	"github.com/Gurpartap/carecompanion/transport/inmem"
)

func (a *app) newServeCommand() *cobra.Command {
	var (
		addr      string
		agentName string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local agent service for development",
		Long: `Run an in-process agent service speaking the same HTTP API the client
uses, plus /api/transcribe, /healthz, /readyz and /metrics.

Agents:
  recall  remembers "my X is Y" statements within a thread
  echo    repeats the latest user message`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agent, err := devAgent(agentName)
			if err != nil {
				return err
			}
			service, err := inmem.NewService(agent)
			if err != nil {
				return err
			}

			transcriber, err := transcribe.NewClient(a.cfg.TranscribeURL, a.cfg.RequestTimeout)
			if err != nil {
				return err
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			listenAddr := a.cfg.HTTPAddr
			if addr != "" {
				listenAddr = addr
			}
			application, err := devserver.New(service, devserver.Options{
				Addr:        listenAddr,
				APIKey:      a.cfg.APIKey,
				Logger:      a.logger,
				Gatherer:    registry,
				Transcriber: transcriber,
			})
			if err != nil {
				return err
			}

			serverErrCh := make(chan error, 1)
			go func() {
				serverErrCh <- application.Start()
			}()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-serverErrCh:
				if err != nil {
					return fmt.Errorf("server exited: %w", err)
				}
				return nil
			case <-sigCtx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := application.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			if err := <-serverErrCh; err != nil {
				return fmt.Errorf("server stopped with error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (COMPANION_HTTP_ADDR)")
	cmd.Flags().StringVar(&agentName, "agent", "recall", "Built-in agent: recall, echo")
	return cmd
}

func devAgent(name string) (inmem.Agent, error) {
	switch name {
	case "recall":
		return inmem.RecallAgent{}, nil
	case "echo":
		return inmem.EchoAgent{}, nil
	default:
		return nil, fmt.Errorf("unsupported agent %q (allowed: %q, %q)", name, "recall", "echo")
	}
}
