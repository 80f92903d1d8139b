package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires every subcommand.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	upFlags := &UpFlags{}
	downFlags := &DownFlags{}
	statusFlags := &StatusFlags{}
	portsFlags := &PortsFlags{}
	reclaimFlags := &ReclaimFlags{}
	initFlags := &InitFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createUpCommand(globalFlags, upFlags),
		createDownCommand(globalFlags, downFlags),
		createStatusCommand(globalFlags, statusFlags),
		createPortsCommand(globalFlags, portsFlags),
		createReclaimCommand(globalFlags, reclaimFlags),
		createInitCommand(initFlags),
	)
	return root
}

// createRootCommand creates the root command with the persistent config flag.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "bringup",
		Short: "Bring a fixed set of local services up and down as one unit",
		Long: `Bringup starts a fixed set of network services in order, captures their
output to per-service log files, optionally frees their ports first, and
stops them all on SIGINT/SIGTERM.

Examples:
  bringup init                        # write a sample bringup.toml
  bringup up                          # start everything, stay in foreground
  bringup up --detach                 # start in the background (needs pid_file)
  bringup status                      # query the status API
  bringup down                        # signal a detached supervisor to stop`,
	}
	root.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "bringup.toml", "path to TOML config file")
	return root
}
