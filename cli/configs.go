package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yllada/trusttunnel-desktop/common"
	"github.com/yllada/trusttunnel-desktop/engine"
	"github.com/yllada/trusttunnel-desktop/routing"
	"github.com/yllada/trusttunnel-desktop/vpn"
)

func (a *App) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.toml>",
		Short: "Validate an engine config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			report := engine.Inspect(args[0])
			if report.ParseError != "" {
				return fmt.Errorf("%w: %s", common.ErrConfigInvalid, report.ParseError)
			}
			for _, e := range report.Errors {
				fmt.Fprintf(out, "Error: %s\n", e)
			}
			for _, w := range report.Warnings {
				fmt.Fprintf(out, "Warning: %s\n", w)
			}
			if !report.OK() {
				return fmt.Errorf("%w: %d error(s)", common.ErrConfigInvalid, len(report.Errors))
			}
			fmt.Fprintln(out, "Configuration is valid")
			return nil
		},
	}
}

func (a *App) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <config.toml>",
		Short: "Show an overview of an engine config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := engine.Summarize(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func printSummary(out io.Writer, s engine.Summary) {
	addresses := "-"
	if len(s.Addresses) > 0 {
		addresses = strings.Join(s.Addresses, ", ")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Hostname:\t%s\n", s.Hostname)
	fmt.Fprintf(w, "Addresses:\t%s\n", addresses)
	fmt.Fprintf(w, "Username:\t%s\n", s.Username)
	fmt.Fprintf(w, "Protocol:\t%s (fallback %s)\n", s.Protocol, s.FallbackProtocol)
	fmt.Fprintf(w, "Log level:\t%s\n", s.LogLevel)
	fmt.Fprintf(w, "VPN mode:\t%s\n", s.VPNMode)
	fmt.Fprintf(w, "Killswitch:\t%s\n", s.Killswitch)
	fmt.Fprintf(w, "DNS upstreams:\t%d\n", s.DNSUpstreams)
	fmt.Fprintf(w, "Listener:\t%s\n", s.ListenerType)
	if s.ListenerType == "tun" {
		fmt.Fprintf(w, "  Bound interface:\t%s\n", s.BoundIf)
		fmt.Fprintf(w, "  MTU:\t%s\n", s.MTU)
		fmt.Fprintf(w, "  System DNS:\t%s\n", s.ChangeSystemDNS)
		fmt.Fprintf(w, "  Routes:\t%d included, %d excluded\n", s.IncludedRoutes, s.ExcludedRoutes)
	}
	w.Flush()
}

func (a *App) pingCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping <config.toml>",
		Short: "Check that the endpoint addresses accept connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := engine.Summarize(args[0])
			if err != nil {
				return fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
			}

			result := vpn.Probe(cmd.Context(), s.Addresses, timeout)
			fmt.Fprintln(cmd.OutOrStdout(), result)
			if !result.OK() {
				return fmt.Errorf("endpoint unreachable")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", common.ProbeTimeout, "dial timeout per address")
	return cmd
}

func (a *App) configsCommand() *cobra.Command {
	configsCmd := &cobra.Command{
		Use:   "configs",
		Short: "Manage saved engine configs",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved configs, most recently used first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			saved, err := s.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(saved) == 0 {
				fmt.Fprintln(out, "No saved configs.")
				fmt.Fprintln(out, "Add one with: trusttunnel configs add <config.toml>")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLAST USED\tPATH")
			fmt.Fprintln(w, "----\t---------\t----")
			for _, c := range saved {
				lastUsed := "never"
				if !c.LastUsed.IsZero() {
					lastUsed = formatDuration(time.Since(c.LastUsed)) + " ago"
				}
				missing := ""
				if _, err := os.Stat(c.Path); err != nil {
					missing = " (missing)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s%s\n", c.Name, lastUsed, c.Path, missing)
			}
			return w.Flush()
		},
	}

	var name string
	addCmd := &cobra.Command{
		Use:   "add <config.toml>",
		Short: "Remember an engine config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := engine.LoadFile(args[0]); err != nil {
				return err
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := s.Add(args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added %s (%s)\n", entry.Name, entry.Path)
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "display name (default: file name)")

	removeCmd := &cobra.Command{
		Use:   "remove <config.toml>",
		Short: "Forget a saved config; the file is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %s\n", args[0])
			return nil
		},
	}

	configsCmd.AddCommand(listCmd, addCmd, removeCmd)
	return configsCmd
}

func (a *App) routingCommand() *cobra.Command {
	routingCmd := &cobra.Command{
		Use:   "routing",
		Short: "Manage the routing subnet list",
	}

	routingCmd.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Download the subnet list into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := routing.FromSettings(a.settings)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), common.RoutingDownloadTimeout)
			defer cancel()
			if err := policy.Update(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Routing list cached to %s\n", policy.CachePath)
			return nil
		},
	})
	return routingCmd
}
