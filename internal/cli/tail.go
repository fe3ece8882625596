package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Robomon/internal/clock"
	"github.com/SmitUplenchwar2687/Robomon/internal/logging"
	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

func newTailCmd() *cobra.Command {
	var (
		conn       connOptions
		clients    []string
		direction  string
		outputJSON bool
		rollCall   bool
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the unified log live",
		Long: `Connects to the relay as the monitor and prints every confirmed message as it
arrives, in the unified log format:

  @15:04:05 - r2d2 received: hello

Connection state changes are logged to stderr.`,
		Example: `  robomon tail
  robomon tail --clients r2d2,c3po --direction received
  robomon tail --roll-call --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conn.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			filter, err := parseFilter(clients, direction)
			if err != nil {
				return err
			}

			log := logging.New(cfg.Log)
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)

			var mu sync.Mutex
			printer := monitor.ObserverFunc(func(e monitor.LogEntry) {
				if !filter.Match(e) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if outputJSON {
					enc.Encode(e)
					return
				}
				fmt.Fprintln(out, e.Line(time.Local))
			})

			store := newStore(cfg, log, nil, clock.NewRealClock(), printer)
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			changes, unsubscribe := store.Subscribe()
			defer unsubscribe()
			store.Start()

			last := monitor.Disconnected
			asked := false
			for {
				select {
				case <-ctx.Done():
					return nil
				case _, ok := <-changes:
					if !ok {
						return nil
					}
					snap := store.Snapshot()
					if snap.State != last {
						ev := log.Info().Str("state", snap.State.String())
						if snap.LastError != nil {
							ev = ev.Str("error", snap.LastError.Message)
						}
						ev.Msg("relay connection")
						last = snap.State
					}
					if snap.Online && rollCall && !asked {
						asked = store.QueryAlive()
					}
				}
			}
		},
	}

	conn.addFlags(cmd)
	cmd.Flags().StringSliceVar(&clients, "clients", nil, "only show these robots (comma-separated)")
	cmd.Flags().StringVar(&direction, "direction", "all", "only show messages in this direction (all, received, sent)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "print entries as newline-delimited JSON")
	cmd.Flags().BoolVar(&rollCall, "roll-call", false, "ask every robot who is alive once connected")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")

	return cmd
}
