package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/bringup/internal/config"
	"github.com/loykin/bringup/internal/reclaim"
	"github.com/loykin/bringup/pkg/client"
)

// createStatusCommand creates the status subcommand.
func createStatusCommand(global *GlobalFlags, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running supervisor's status API",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStatus(global, flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "show only this service")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "table", "output format: table or json")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "status API base URL (default from config [server])")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 5*time.Second, "status API request timeout")
	return cmd
}

func runStatus(global *GlobalFlags, flags *StatusFlags) error {
	baseURL := flags.APIUrl
	if baseURL == "" {
		c, err := config.Load(global.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config (or pass --api-url): %w", err)
		}
		if !c.Server.Enabled {
			return fmt.Errorf("status API disabled in %s; enable [server] or pass --api-url", global.ConfigPath)
		}
		baseURL = "http://" + c.Server.Listen + c.Server.BasePath
	}

	cl := client.New(client.Config{BaseURL: baseURL, Timeout: flags.APITimeout})
	ctx, cancel := context.WithTimeout(context.Background(), flags.APITimeout)
	defer cancel()

	if flags.Name != "" {
		st, err := cl.StatusByName(ctx, flags.Name)
		if err != nil {
			return err
		}
		if flags.Output == "json" {
			printJSON(st)
			return nil
		}
		printStatusTable([]client.ServiceStatus{st})
		return nil
	}

	state, err := cl.State(ctx)
	if err != nil {
		return err
	}
	sts, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	if flags.Output == "json" {
		printJSON(map[string]any{"state": state, "services": sts})
		return nil
	}
	fmt.Printf("supervisor: %s\n", state)
	printStatusTable(sts)
	return nil
}

// createPortsCommand creates the ports subcommand.
func createPortsCommand(global *GlobalFlags, flags *PortsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Report what currently occupies the configured ports",
		Long: `Ports inspects every port declared in the config (or a single --port)
and prints the PIDs listening on each. It never kills anything; use
"bringup reclaim" for that.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runPorts(global, flags)
		},
	}
	cmd.Flags().IntVar(&flags.Port, "port", 0, "inspect a single port instead of the configured set")
	return cmd
}

func runPorts(global *GlobalFlags, flags *PortsFlags) error {
	var ports []int
	if flags.Port > 0 {
		ports = []int{flags.Port}
	} else {
		c, err := config.Load(global.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config (or pass --port): %w", err)
		}
		ports = c.DeclaredPorts()
	}
	if len(ports) == 0 {
		fmt.Println("no ports declared")
		return nil
	}

	fmt.Printf("%-8s %-10s %s\n", "PORT", "STATE", "PIDS")
	for _, port := range ports {
		b, err := reclaim.Inspect(port)
		if err != nil {
			fmt.Printf("%-8d %-10s %v\n", port, "error", err)
			continue
		}
		if !b.Occupied() {
			fmt.Printf("%-8d %-10s -\n", port, "free")
			continue
		}
		fmt.Printf("%-8d %-10s %s\n", port, "occupied", joinInts(b.PIDs))
	}
	return nil
}

// createReclaimCommand creates the reclaim subcommand.
func createReclaimCommand(_ *GlobalFlags, flags *ReclaimFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Forcibly free one port by killing its current occupants",
		Long: `Reclaim terminates whatever is listening on the given port. The
occupant may be a process bringup knows nothing about; that collateral is
the point of the command, so it asks for confirmation unless --yes.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runReclaim(flags)
		},
	}
	cmd.Flags().IntVar(&flags.Port, "port", 0, "port to reclaim (required)")
	cmd.Flags().BoolVar(&flags.Yes, "yes", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}

func runReclaim(flags *ReclaimFlags) error {
	b, err := reclaim.Inspect(flags.Port)
	if err != nil {
		return err
	}
	if !b.Occupied() {
		fmt.Printf("port %d is already free\n", flags.Port)
		return nil
	}
	fmt.Printf("port %d is held by PID(s) %s\n", flags.Port, joinInts(b.PIDs))

	if !flags.Yes {
		fmt.Print("kill them? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if s := strings.ToLower(strings.TrimSpace(line)); s != "y" && s != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	res, err := reclaim.Reclaim(flags.Port)
	if err != nil {
		return err
	}
	fmt.Printf("port %d cleared, killed %s\n", res.Port, joinInts(res.Killed))
	return nil
}
