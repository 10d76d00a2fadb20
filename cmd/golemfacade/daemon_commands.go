package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"golemfacade/internal/api"
	"golemfacade/internal/daemonctl"
)

// launchWait bounds how long start and restart wait for a new daemon's socket.
const launchWait = 10 * time.Second

type launchFlags struct {
	diagnostic  bool
	noAutoStart bool
}

func (f *launchFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.diagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")
	cmd.Flags().BoolVar(&f.noAutoStart, "no-autostart", false, "Keep yagna and ya-provider stopped until `golemfacade golem start`")
}

func (f launchFlags) options(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath:  strings.TrimSpace(ctx.socketFlag),
		ConfigPath:  ctx.configPath(),
		Diagnostic:  f.diagnostic,
		NoAutoStart: f.noAutoStart,
	}
}

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var flags launchFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the golemfacade daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			rpcCtx, cancel := rpcContext(cmd, ctx.lifecycleTimeout())
			defer cancel()
			result, err := daemonctl.EnsureStarted(rpcCtx, ctx.socketPath(), exe, flags.options(ctx), launchWait, false)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Launched {
				fmt.Fprintln(out, "Daemon not running, launching...")
			}
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(out, "Daemon already running")
			case daemonctl.StartStateStarted:
				fmt.Fprintln(out, "Daemon started")
				if !flags.noAutoStart {
					fmt.Fprintln(out, "Golem is starting; check progress with `golemfacade status`")
				}
			case daemonctl.StartStateRequested:
				fmt.Fprintln(out, messageOr(result.Message, "Start request sent"))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop golem and terminate the daemon process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), stopGrace(ctx))
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			case err != nil:
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(out, "Stopping golem and daemon...")
			} else {
				fmt.Fprintln(out, "Stop request sent")
			}
			reportKill(out, result)
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	var flags launchFlags
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the golemfacade daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			rpcCtx, cancel := rpcContext(cmd, ctx.lifecycleTimeout())
			defer cancel()
			result, err := daemonctl.Restart(rpcCtx, ctx.socketPath(), ctx.configValue(), exe,
				flags.options(ctx), stopGrace(ctx), launchWait)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.WasRunning {
				reportKill(out, result.Stop)
				fmt.Fprintln(out, "Daemon stopped")
			}
			if result.Start.State == daemonctl.StartStateRequested {
				fmt.Fprintln(out, messageOr(result.Start.Message, "Start request sent"))
				return nil
			}
			fmt.Fprintln(out, "Daemon restarted")
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var outputFlag string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, golem and dependency status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if format != outputTable {
				return writeStructured(cmd, format, snapshot)
			}
			out := cmd.OutOrStdout()
			printStatus(out, snapshot, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

func printStatus(out io.Writer, snapshot *daemonctl.StatusSnapshot, colorize bool) {
	checks := make([]string, len(snapshot.SystemChecks))
	for i, line := range snapshot.SystemChecks {
		checks[i] = renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize)
	}
	printSection(out, "System Status", checks, colorize)
	fmt.Fprintln(out)
	printSection(out, "Dependencies", dependencyLines(snapshot.Dependencies, snapshot.DependencySummary, colorize), colorize)
	fmt.Fprintln(out)

	printSection(out, "Jobs", nil, colorize)
	rows := jobCountRows(snapshot.JobCounts)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No jobs recorded")
		return
	}
	fmt.Fprint(out, renderTable([]tableColumn{{header: "Status"}, {header: "Count", align: alignRight}}, rows))
}

func printSection(out io.Writer, title string, lines []string, colorize bool) {
	for _, line := range append(renderSectionHeader(title, colorize), lines...) {
		fmt.Fprintln(out, line)
	}
}

func reportKill(out io.Writer, result daemonctl.StopResult) {
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(out, "Killed daemon process (pid %d)\n", result.PID)
	}
}

func messageOr(message, fallback string) string {
	if message = strings.TrimSpace(message); message != "" {
		return message
	}
	return fallback
}

// stopGrace leaves room for both daemons to use their full grace period.
func stopGrace(ctx *commandContext) time.Duration {
	if cfg := ctx.configValue(); cfg != nil {
		return 2*cfg.StopGrace() + 10*time.Second
	}
	return 70 * time.Second
}

// jobCountRows sorts the non-zero counts by status name.
func jobCountRows(counts map[string]int) [][]string {
	var rows [][]string
	for status, count := range counts {
		if count > 0 {
			rows = append(rows, []string{status, strconv.Itoa(count)})
		}
	}
	slices.SortFunc(rows, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	for _, row := range rows {
		row[0] = titleLabel(row[0])
	}
	return rows
}

// dependencyLines renders the summary first, then one line per dependency.
func dependencyLines(deps []api.DependencyStatus, summary api.DependencySummary, colorize bool) []string {
	lines := []string{renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize)}
	for _, dep := range deps {
		kind, message := statusOK, "Ready"
		switch {
		case !dep.Available:
			kind, message = statusKindFromSeverity(dep.Severity), messageOr(dep.Detail, "not available")
		case dep.Command != "":
			message = fmt.Sprintf("Ready (command: %s)", dep.Command)
		case dep.Detail != "":
			message = fmt.Sprintf("Ready (%s)", dep.Detail)
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, message, colorize))
	}
	return lines
}
