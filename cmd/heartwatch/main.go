package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"heartwatch/internal/alerts"
	"heartwatch/internal/api"
	"heartwatch/internal/config"
	"heartwatch/internal/engine"
	"heartwatch/internal/extract"
	"heartwatch/internal/ingest"
	"heartwatch/internal/logging"
	"heartwatch/internal/metrics"
	"heartwatch/internal/model"
	"heartwatch/internal/notify"
	"heartwatch/internal/storage"
)

var version = "dev"

func main() {
	var configPath string

	app := &cobra.Command{
		Use:          "heartwatch",
		Short:        "Watches a bot's heart counters and pushes tiered alerts",
		Version:      version,
		SilenceUsage: true,
	}
	app.PersistentFlags().StringVarP(&configPath, "config", "c", "heartwatch.yaml", "config file (yaml or json)")

	app.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and deliver alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	})

	app.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the config and print the compiled tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.ResolvePath(configPath))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range engine.CompileTiers(cfg.Engine.Tiers) {
				fmt.Fprintf(out, "%s -> %s (%s)\n", t, t.Audience, t.Priority)
			}
			fmt.Fprintln(out, "config ok")
			return nil
		},
	})

	app.AddCommand(&cobra.Command{
		Use:   "extract [file]",
		Short: "Print the heart counts found in message JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return printExtract(cmd.OutOrStdout(), r)
		},
	})

	exitIfError(app.Execute())
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting", "version", version, "tiers", len(cfg.Engine.Tiers), "channels", len(cfg.Discord.Channels))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := store.Init(initCtx)
		cancel()
		if err != nil {
			_ = store.Close()
			return fmt.Errorf("init storage: %w", err)
		}
		defer store.Close()
		logger.Info("alert audit log enabled", "driver", cfg.Storage.Driver)
	}

	history := alerts.NewStore(cfg.Alerts.StoreLimit)
	sender, err := notify.NewSender(cfg.Notify, logger)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(cfg.Notify, sender, logger, m, history, store)
	dispatched := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatched)
	}()

	eng := engine.NewEngine(cfg.Engine, logger, m, dispatcher)
	observations := make(chan model.Observation, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, observations)
	eng.StartSweeper(ctx, cfg.Engine.SweepInterval)

	relay := ingest.NewRelay(cfg.Discord, observations, logger, m)
	if err := startDiscord(ctx, cfg, relay, logger); err != nil {
		return err
	}
	ingest.StartREST(ctx, cfg.Ingest.REST, relay, logger)
	ingest.StartKafka(ctx, cfg.Ingest.Kafka, relay, logger)

	api.Start(ctx, api.NewServer(cfg, history, store, eng, reg, logger, version))

	<-ctx.Done()
	logger.Info("shutting down", "pending_alerts", dispatcher.Pending(), "tracked_messages", eng.Len())
	// the audit store is closed by a deferred call; let the writer flush first
	<-dispatched
	return nil
}

func startDiscord(ctx context.Context, cfg *config.Config, relay *ingest.Relay, logger *slog.Logger) error {
	if !cfg.Discord.Gateway.Enabled && !cfg.Poll.Enabled {
		logger.Info("discord ingest disabled")
		return nil
	}
	session, err := ingest.NewSession(cfg.Discord.Token)
	if err != nil {
		return err
	}
	if cfg.Discord.Gateway.Enabled {
		if err := ingest.StartGateway(ctx, session, relay, logger); err != nil {
			return err
		}
	}
	if cfg.Poll.Enabled {
		ingest.NewPoller(session, relay, cfg.Discord, cfg.Poll, logger).Start(ctx)
	}
	return nil
}

func printExtract(w io.Writer, r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	msgs, err := ingest.DecodeMessages(raw)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		values := extract.Values(msg)
		rep, ok := extract.Representative(values)
		if !ok {
			fmt.Fprintf(w, "%s\tvalues=%v\tno count\n", msg.ID, values)
			continue
		}
		fmt.Fprintf(w, "%s\tvalues=%v\trepresentative=%d\n", msg.ID, values, rep)
	}
	return nil
}

func exitIfError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
