package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root robomon command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "robomon",
		Short: "Monitor a fleet of robots through their relay",
		Long: `Robomon connects to the robot relay as the monitor, tracks which robots are
alive, keeps a log of every confirmed message and serves it all to a dashboard.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newMonitorCmd(),
		newTailCmd(),
		newLogsCmd(),
		newConfigCmd(),
	)

	return root
}
