package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/coachpo/conduit/internal/app/topology"
	httpserver "github.com/coachpo/conduit/internal/infra/server/http"
	"github.com/coachpo/conduit/internal/infra/telemetry"
)

const (
	healthcheckTimeout = 60 * time.Second
	controlServerShutdownTimeout = 5 * time.Second
	topologyShutdownTimeout = 30 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

var (
	runEnvironment string
	runServiceName string
	runOTLPEndpoint string
	runControlAddr string
)

var runCmd = &cobra.Command{
	Use: "run",
	Short: "Build the graph and run its topology until a shutdown signal arrives",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTopology(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runEnvironment, "environment", "development", "deployment environment tag for logs and metrics")
	runCmd.Flags().StringVar(&runServiceName, "service-name", "conduit", "service name reported to telemetry")
	runCmd.Flags().StringVar(&runOTLPEndpoint, "otlp-endpoint", "", "OTLP metrics endpoint (metrics are a no-op when empty)")
	runCmd.Flags().StringVar(&runControlAddr, "control-addr", "127.0.0.1:9000", "address the /healthz, /readyz, /topology control server listens on")
}

func runTopology(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	graph, err := loadGraph(configPath)
	if err != nil {
		return err
	}
	if err := graph.Validate(); err != nil {
		return fmt.Errorf("validate %s: %w", configPath, err)
	}

	observer, telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: runServiceName,
		Environment: runEnvironment,
		OTLPEndpoint: runOTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}

	reg := buildRegistry()
	topo, err := topology.Build(graph, reg, observer)
	if err != nil {
		return fmt.Errorf("build %s: %w", configPath, err)
	}

	topo.Start(ctx)

	readyCtx, readyCancel := context.WithTimeout(ctx, healthcheckTimeout)
	err = topo.Healthcheck(readyCtx, healthcheckTimeout)
	readyCancel()
	if err != nil {
		log.Error().Err(err).Msg("sink healthcheck failed at startup")
	} else {
		log.Info().Int("nodes", len(topo.NodeNames())).Msg("topology healthy")
	}

	var lifecycle conc.WaitGroup
	controlServer := &http.Server{
		Addr: runControlAddr,
		Handler: httpserver.NewHandler(topo),
		ReadHeaderTimeout: 5 * time.Second,
	}
	lifecycle.Go(func() {
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control server stopped")
		}
	})
	log.Info().Str("addr", runControlAddr).Msg("control server listening")

	log.Info().Msg("conduit running; awaiting shutdown signal")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), topologyShutdownTimeout+controlServerShutdownTimeout+telemetryShutdownTimeout)
	defer shutdownCancel()
	performGracefulShutdown(shutdownCtx, log, controlServer, &lifecycle, topo, telemetryShutdown)
	return nil
}

// performGracefulShutdown stops the control server, then the topology, then
// telemetry, each bounded by its own timeout, mirroring the teacher's
// performGracefulShutdown named-step sequencing in cmd/gateway/main.go.
func performGracefulShutdown(ctx context.Context, log zerolog.Logger, controlServer *http.Server, lifecycle *conc.WaitGroup, topo *topology.Topology, telemetryShutdown func(context.Context) error) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		log.Info().Str("step", name).Msg("shutdown: starting")
		if err := fn(stepCtx); err != nil {
			log.Error().Str("step", name).Err(err).Msg("shutdown: step failed")
			return
		}
		log.Info().Str("step", name).Msg("shutdown: completed")
	}

	shutdownStep("stopping control server", controlServerShutdownTimeout, controlServer.Shutdown)
	shutdownStep("waiting for control server goroutine", controlServerShutdownTimeout, func(stepCtx context.Context) error {
		return waitLifecycle(stepCtx, lifecycle)
	})
	shutdownStep("stopping topology", topologyShutdownTimeout, func(stepCtx context.Context) error {
		return topo.Shutdown(stepCtx, topologyShutdownTimeout)
	})
	topo.Wait()
	shutdownStep("shutting down telemetry", telemetryShutdownTimeout, telemetryShutdown)
}

func waitLifecycle(ctx context.Context, lifecycle *conc.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		lifecycle.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for goroutines: %w", ctx.Err())
	}
}
