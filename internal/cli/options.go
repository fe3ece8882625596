package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Robomon/internal/clock"
	"github.com/SmitUplenchwar2687/Robomon/internal/config"
	"github.com/SmitUplenchwar2687/Robomon/internal/journal"
	"github.com/SmitUplenchwar2687/Robomon/internal/logging"
	"github.com/SmitUplenchwar2687/Robomon/internal/metrics"
	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
	"github.com/SmitUplenchwar2687/Robomon/internal/transport"
)

// connOptions are the flags shared by every command that talks to the relay.
type connOptions struct {
	configPath  string
	url         string
	attempts    int
	delay       time.Duration
	dialTimeout time.Duration
	logLevel    string
	logPretty   bool
}

func (o *connOptions) addFlags(cmd *cobra.Command) {
	def := config.Default()
	cmd.Flags().StringVar(&o.configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&o.url, "url", def.Transport.URL, "relay WebSocket URL (ws:// or wss://)")
	cmd.Flags().IntVar(&o.attempts, "reconnect-attempts", def.Transport.Reconnect.Attempts, "automatic reconnection attempts after a failure")
	cmd.Flags().DurationVar(&o.delay, "reconnect-delay", def.Transport.Reconnect.Delay, "pause before each reconnection attempt")
	cmd.Flags().DurationVar(&o.dialTimeout, "dial-timeout", def.Transport.Dial.Timeout, "timeout for each connection attempt")
	cmd.Flags().StringVar(&o.logLevel, "log-level", def.Log.Level, "log level (trace, debug, info, warn, error, disabled)")
	cmd.Flags().BoolVar(&o.logPretty, "log-pretty", false, "human-friendly console logs")
}

// load resolves the configuration: defaults, file, environment, then any
// flag the user set explicitly.
func (o *connOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("url") {
		cfg.Transport.URL = o.url
	}
	if cmd.Flags().Changed("reconnect-attempts") {
		cfg.Transport.Reconnect.Attempts = o.attempts
	}
	if cmd.Flags().Changed("reconnect-delay") {
		cfg.Transport.Reconnect.Delay = o.delay
	}
	if cmd.Flags().Changed("dial-timeout") {
		cfg.Transport.Dial.Timeout = o.dialTimeout
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if cmd.Flags().Changed("log-pretty") {
		cfg.Log.Pretty = o.logPretty
	}
	return cfg, nil
}

// newStore wires a connection state store to the configured relay.
func newStore(cfg config.Config, log zerolog.Logger, m *metrics.Metrics, clk clock.Clock, observers ...monitor.Observer) *monitor.Store {
	factory := transport.NewFactory(cfg.Transport.URL,
		transport.WithReconnectAttempts(cfg.Transport.Reconnect.Attempts),
		transport.WithReconnectDelay(cfg.Transport.Reconnect.Delay),
		transport.WithDialTimeout(cfg.Transport.Dial.Timeout),
		transport.WithClock(clk),
		transport.WithLogger(logging.Component(log, "transport")),
	)

	opts := []monitor.Option{
		monitor.WithClock(clk),
		monitor.WithLogger(logging.Component(log, "store")),
		monitor.WithMetrics(m),
	}
	for _, o := range observers {
		opts = append(opts, monitor.WithObserver(o))
	}
	return monitor.New(factory, opts...)
}

// newArchive opens the configured journal archive. It returns nil for the
// none backend.
func newArchive(ctx context.Context, cfg config.JournalConfig) (journal.Archive, error) {
	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		return journal.NewMemoryArchive(), nil
	case config.BackendRedis:
		a, err := journal.NewRedisArchive(ctx, cfg.Redis)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open redis journal")
		}
		return a, nil
	default:
		return nil, errors.Errorf("unknown journal backend %q", cfg.Backend)
	}
}

// parseFilter builds a journal filter from the --clients and --direction flags.
func parseFilter(clients []string, direction string) (journal.Filter, error) {
	dir, err := monitor.ParseDirection(direction)
	if err != nil {
		return journal.Filter{}, err
	}
	return journal.Filter{Clients: clients, Direction: dir}, nil
}
