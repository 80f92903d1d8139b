package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const sampleConfig = `# bringup.toml: one managed lifecycle for a fixed set of local services.
# Services start top to bottom with settle_delay between them and stop in
# reverse order on SIGINT/SIGTERM.

settle_delay = "1s"
grace_timeout = "10s"

# Port reclamation kills whatever currently listens on a declared port
# before starting. That can take down unrelated processes; it stays off
# unless you turn it on.
reclaim_ports = false
# extra_reclaim_ports = [5050]

# continue: a failed launch is logged and the rest still start (default).
# abort: a failed launch stops the startup and tears down what started.
on_launch_failure = "continue"

# Child environment: OS env as base, then env_files, then env, then each
# service's own env. Later layers win.
use_os_env = true
# env_files = [".env"]
# env = ["LOG_LEVEL=info"]

# Needed for "bringup up --detach" and "bringup down".
# pid_file = "bringup.pid"

[log]
level = "info"
color = true
dir = "logs"          # default child logs: logs/<name>.stdout.log
max_size_mb = 50
max_backups = 3

[server]
enabled = false
listen = "127.0.0.1:8642"
base_path = "/api"

[metrics]
enabled = false
listen = "127.0.0.1:9090"

[store]
enabled = false
dsn = "bringup-state.db"

[history]
enabled = false
dsn = "sqlite://bringup-history.db"

[[services]]
name = "api"
command = "python -m uvicorn server.main:app --host 127.0.0.1 --port 8000"
workdir = "."
host = "127.0.0.1"
port = 8000

[[services]]
name = "mcp"
command = "python -m mcp.server"
host = "127.0.0.1"
port = 8001

[[services]]
name = "hooks"
command = "python -m hooks.webhook"
port = 5050

[[services]]
name = "worker"
command = "python -m worker.main"

# Outbound tunnel; no port of its own, depends on the services above, so
# it starts last and stops first.
[[services]]
name = "edge"
command = "cloudflared tunnel run backend"
`

// createInitCommand creates the init subcommand.
func createInitCommand(flags *InitFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented sample bringup.toml",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInit(flags)
		},
	}
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "bringup.toml", "where to write the sample config")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing file")
	return cmd
}

func runInit(flags *InitFlags) error {
	if !flags.Force {
		if _, err := os.Stat(flags.Output); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", flags.Output)
		}
	}
	if err := os.WriteFile(flags.Output, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", flags.Output, err)
	}
	fmt.Printf("wrote %s\n", flags.Output)
	return nil
}
