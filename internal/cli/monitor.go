package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Robomon/internal/clock"
	"github.com/SmitUplenchwar2687/Robomon/internal/config"
	"github.com/SmitUplenchwar2687/Robomon/internal/journal"
	"github.com/SmitUplenchwar2687/Robomon/internal/logging"
	"github.com/SmitUplenchwar2687/Robomon/internal/metrics"
	"github.com/SmitUplenchwar2687/Robomon/internal/server"
)

func newMonitorCmd() *cobra.Command {
	var (
		conn       connOptions
		addr       string
		recordFile string
		backend    string
		redisAddr  string
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Connect to the relay and serve the dashboard",
		Long: `Connects to the relay as the monitor and serves the dashboard API.

Endpoints:
  GET  /                        Service info and connection state
  GET  /health                  Health check
  GET  /api/state               Full state snapshot
  GET  /api/logs                Unified log (?client=a,b&direction=received|sent)
  GET  /api/clients/{id}/logs   One robot's log
  GET  /api/clients/{id}/history One robot's archived log (?direction=...)
  GET  /api/archive/clients     Robots in the journal archive
  GET  /api/camera/{id}         Latest camera frame (JPEG)
  POST /api/broadcast           {"msg": "..."} to every robot
  POST /api/clients/{id}/send   {"msg": "..."} to one robot
  POST /api/who-is-alive        Roll call
  POST /api/reconnect           Resume the relay connection
  POST /api/disconnect          Drop the relay connection
  WS   /ws                      State snapshots on every change
  GET  /metrics                 Prometheus metrics`,
		Example: `  robomon monitor
  robomon monitor --url ws://10.0.0.5:8000/ws --addr :9090
  robomon monitor --record journal.json
  robomon monitor --journal redis --redis-addr localhost:6379`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conn.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("record") {
				cfg.Journal.File = recordFile
			}
			if cmd.Flags().Changed("journal") {
				cfg.Journal.Backend = backend
			}
			if cmd.Flags().Changed("redis-addr") {
				cfg.Journal.Redis.Addr = redisAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return runMonitor(ctx, cfg)
		},
	}

	conn.addFlags(cmd)
	def := config.Default()
	cmd.Flags().StringVar(&addr, "addr", def.Server.Addr, "dashboard address to listen on")
	cmd.Flags().StringVar(&recordFile, "record", "", "export the journal to this JSON file on shutdown")
	cmd.Flags().StringVar(&backend, "journal", def.Journal.Backend, "journal archive backend (none, memory, redis)")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", def.Journal.Redis.Addr, "redis address for the redis journal backend")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")

	return cmd
}

// runMonitor serves the dashboard until ctx is done or the server fails,
// then shuts down and exports the journal.
func runMonitor(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.Log)
	clk := clock.NewRealClock()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	archive, err := newArchive(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	sinkOpts := []journal.SinkOption{journal.WithSinkLogger(logging.Component(log, "journal"))}
	if cfg.Journal.File != "" {
		sinkOpts = append(sinkOpts, journal.WithRetention())
	}
	sink := journal.NewSink(archive, sinkOpts...)

	store := newStore(cfg, log, m, clk, sink)
	srv := server.New(cfg.Server.Addr, store, clk, server.Options{
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Archive: archive,
		Logger:  logging.Component(log, "server"),
	})

	log.Info().Str("relay", cfg.Transport.URL).Str("dashboard", "http://localhost"+cfg.Server.Addr+"/").Msg("starting monitor")
	store.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	store.Close()
	sink.Close()

	if cfg.Journal.File != "" {
		log.Info().Int("entries", sink.Len()).Str("file", cfg.Journal.File).Msg("exporting journal")
		if err := sink.ExportFile(cfg.Journal.File); err != nil {
			log.Error().Err(err).Msg("failed to export journal")
		}
	}
	if archive != nil {
		if err := archive.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close journal archive")
		}
	}
	return runErr
}
