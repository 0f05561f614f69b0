// Package main is the entry point for the smartcar coordination core.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/burahimasree/smartcar-core/internal/buildinfo"
	"github.com/burahimasree/smartcar-core/internal/bus"
	"github.com/burahimasree/smartcar-core/internal/config"
	"github.com/burahimasree/smartcar-core/internal/motorbridge"
	"github.com/burahimasree/smartcar-core/internal/orchestrator"
	"github.com/burahimasree/smartcar-core/internal/reconnect"
	"github.com/burahimasree/smartcar-core/internal/remote"
)

// hubPublisher adapts a same-process *bus.Hub to motorbridge.Publisher.
// The motor bridge is written against that interface so it can equally
// be driven by a *bus.Connection when run out-of-process; here it runs
// co-located with the hub, same as the orchestrator and remote server.
type hubPublisher struct{ hub *bus.Hub }

func (p hubPublisher) PublishUpstream(topic bus.Topic, payload []byte) error {
	p.hub.Publish(bus.Upstream, topic, payload)
	return nil
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "roverctl",
		Short:         "Coordination core for a voice-driven mobile robot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath, false),
		newServeCmd(&configPath, true),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
			return nil
		},
	}
}

// newServeCmd builds both "serve" and "sim": identical wiring except
// for which motorbridge.OpenPortFunc backs the nav connection. sim
// needs no physical rover attached (supplemented feature, see
// SPEC_FULL.md §3's simulated peripheral).
func newServeCmd(configPath *string, sim bool) *cobra.Command {
	use, short := "serve", "Run against the physical UART peripheral"
	if sim {
		use, short = "sim", "Run against an in-process simulated peripheral"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *configPath, sim)
		},
	}
}

func run(ctx context.Context, configPath string, sim bool) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", cfgPath, err)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level in config: %w", err)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}

	logger.Info("starting roverctl",
		"version", buildinfo.Version, "commit", buildinfo.GitCommit,
		"config", cfgPath, "sim", sim)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := bus.NewHub(bus.HubConfig{
		UpstreamAddr:   cfg.IPC.Upstream,
		DownstreamAddr: cfg.IPC.Downstream,
	}, logger)

	commandTokens := make(map[motorbridge.Direction]string, len(cfg.Nav.Commands))
	for dir, token := range cfg.Nav.Commands {
		commandTokens[motorbridge.Direction(dir)] = token
	}

	bridge := motorbridge.New(motorbridge.Config{
		CommandTokens: commandTokens,
		Safety: motorbridge.SafetyConfig{
			Thresholds: motorbridge.SafetyThresholds{
				StopDistanceCM:    cfg.Safety.StopDistanceCM,
				WarningDistanceCM: cfg.Safety.WarningDistanceCM,
			},
			FreshnessWindow: time.Duration(cfg.Safety.SensorFreshnessMS) * time.Millisecond,
		},
		ReopenBackoff: reconnect.DefaultBackoffConfig(),
	}, hubPublisher{hub}, hub.Subscribe(bus.Downstream, bus.T("nav."), 64).Ch(), logger)

	orch := orchestrator.New(orchestrator.Config{
		STTTimeout:      time.Duration(cfg.STT.TimeoutSeconds) * time.Second,
		MinConfidence:   cfg.STT.MinConfidence,
		LLMTimeout:      time.Duration(cfg.Orchestrator.LLMTimeoutSeconds) * time.Second,
		SpeakingTimeout: time.Duration(cfg.Orchestrator.SpeakingTimeoutSeconds) * time.Second,
		ErrorTimeout:    time.Duration(cfg.Orchestrator.ErrorTimeoutSeconds) * time.Second,
		SafetyFreshness: time.Duration(cfg.Safety.SensorFreshnessMS) * time.Millisecond,
	}, hub, logger)

	remoteServer := remote.NewServer(remote.Config{
		ListenAddr:   fmt.Sprintf("%s:%d", cfg.RemoteInterface.Host, cfg.RemoteInterface.Port),
		AllowedCIDRs: cfg.RemoteInterface.AllowedCIDRs,
		Session: remote.SessionConfig{
			IdleTimeout: time.Duration(cfg.RemoteInterface.SessionTimeoutSec) * time.Second,
		},
	}, hub, orch.Phase, logger)

	var openPort motorbridge.OpenPortFunc
	if sim {
		openPort = newSimPeripheral(logger, 1).openSimPort
	} else {
		openPort = openSerialPort(cfg.Nav.UARTDevice, cfg.Nav.BaudRate)
	}

	errCh := make(chan error, 4)
	go func() { errCh <- hub.ListenAndServe(ctx) }()
	go func() { errCh <- orch.Run(ctx) }()
	go func() { errCh <- remoteServer.ListenAndServe(ctx) }()
	go func() {
		bridge.Run(ctx, openPort)
		errCh <- nil
	}()

	stopConfigWatch := make(chan struct{})
	go func() {
		err := config.Watch(cfgPath, stopConfigWatch, func(_ *config.Config, err error) {
			if err != nil {
				logger.Warn("config reload failed, keeping previous config", "error", err)
				return
			}
			logger.Info("config file changed on disk; restart to apply (no field is applied live)")
		}, logger)
		if err != nil {
			logger.Warn("config watch stopped", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("a core service exited, shutting down", "error", err)
		}
		stop()
	}
	close(stopConfigWatch)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := remoteServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("remote server shutdown", "error", err)
	}

	return nil
}
