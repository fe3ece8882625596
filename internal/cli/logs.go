package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Robomon/internal/config"
	"github.com/SmitUplenchwar2687/Robomon/internal/journal"
	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

func newLogsCmd() *cobra.Command {
	var (
		file        string
		redisAddr   string
		redisPrefix string
		clients     []string
		direction  string
		outputJSON bool
		utc        bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print a recorded journal as a unified log",
		Long: `Reads a journal exported by "robomon monitor --record", or the history kept
by "robomon monitor --journal redis", and prints it as one log ordered by
timestamp. Messages with the same timestamp keep the order in which they were
recorded.`,
		Example: `  robomon logs --file journal.json
  robomon logs --file journal.json --clients r2d2 --direction sent
  robomon logs --file journal.json --json
  robomon logs --redis-addr localhost:6379 --clients r2d2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (redisAddr == "") {
				return errors.New("exactly one of --file or --redis-addr is required")
			}
			filter, err := parseFilter(clients, direction)
			if err != nil {
				return err
			}

			var entries []monitor.LogEntry
			if file != "" {
				entries, err = journal.LoadFile(file)
			} else {
				entries, err = loadRedisHistory(cmd.Context(), redisAddr, redisPrefix, clients)
			}
			if err != nil {
				return err
			}
			merged := journal.Merge(entries, &filter)

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(merged)
			}

			loc := time.Local
			if utc {
				loc = time.UTC
			}
			for _, e := range merged {
				fmt.Fprintln(out, e.Line(loc))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "journal JSON file")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "read the history archived in this redis instead of a file")
	cmd.Flags().StringVar(&redisPrefix, "redis-prefix", journal.DefaultRedisPrefix, "key prefix of the redis archive")
	cmd.Flags().StringSliceVar(&clients, "clients", nil, "only show these robots (comma-separated)")
	cmd.Flags().StringVar(&direction, "direction", "all", "only show messages in this direction (all, received, sent)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "print the filtered log as a JSON array")
	cmd.Flags().BoolVar(&utc, "utc", false, "print times in UTC instead of local time")

	return cmd
}

func loadRedisHistory(ctx context.Context, addr, prefix string, clients []string) ([]monitor.LogEntry, error) {
	cfg := config.Default().Journal.Redis
	cfg.Addr = addr
	cfg.Prefix = prefix
	a, err := journal.NewRedisArchive(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open redis journal")
	}
	defer a.Close()
	return archivedEntries(ctx, a, clients)
}

// archivedEntries gathers the history of the given clients, or of every
// archived client when none are given.
func archivedEntries(ctx context.Context, a journal.Archive, clients []string) ([]monitor.LogEntry, error) {
	if len(clients) == 0 {
		var err error
		if clients, err = a.Clients(ctx); err != nil {
			return nil, err
		}
	}
	var out []monitor.LogEntry
	for _, id := range clients {
		hist, err := a.History(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, hist...)
	}
	return out, nil
}
