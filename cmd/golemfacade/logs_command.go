package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"golemfacade/internal/api"
	"golemfacade/internal/ipc"
	"golemfacade/internal/logs"
)

const logFollowWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var component string
	var agreement string
	var offline bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if offline {
				return readLogFile(cmd, ctx, lines, follow, logs.Filter{Component: component, Agreement: agreement})
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				req := ipc.LogTailRequest{
					Limit:     lines,
					Component: component,
					Agreement: agreement,
				}
				printed := false
				for {
					rpcCtx, cancel := rpcContext(cmd, rpcTimeout+logFollowWait)
					resp, err := client.LogTail(rpcCtx, req)
					cancel()
					if err != nil {
						if cmd.Context() != nil && cmd.Context().Err() != nil {
							return nil
						}
						return fmt.Errorf("tail logs: %w", err)
					}
					if resp == nil {
						return errors.New("log tail response missing")
					}
					for _, evt := range resp.Events {
						fmt.Fprintln(out, formatLogEvent(evt))
						printed = true
					}
					if !follow {
						if !printed {
							fmt.Fprintln(out, "No log entries available")
						}
						return nil
					}
					if cmd.Context() != nil && cmd.Context().Err() != nil {
						return nil
					}
					req.Since = resp.Next
					req.Limit = 0
					req.Follow = true
					req.WaitMillis = int(logFollowWait / time.Millisecond)
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent lines to show")
	cmd.Flags().StringVar(&component, "component", "", "Only show lines from this component (e.g. yagna, activity, invoice)")
	cmd.Flags().StringVar(&agreement, "agreement", "", "Only show lines for this agreement id")
	cmd.Flags().BoolVar(&offline, "offline", false, "Read the latest log file directly instead of asking the daemon")
	return cmd
}

// readLogFile shows the log of the latest daemon run without IPC.
func readLogFile(cmd *cobra.Command, ctx *commandContext, lines int, follow bool, filter logs.Filter) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	path := cfg.CurrentLogPath()
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	opts := logs.ReadOptions{Offset: -1, Limit: lines, Filter: filter}
	printed := false
	for {
		result, err := logs.Read(runCtx, path, opts)
		if err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			return err
		}
		for _, evt := range result.Events {
			fmt.Fprintln(out, formatLogEvent(evt))
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintf(out, "No log entries in %s\n", path)
			}
			return nil
		}
		opts.Offset = result.Offset
		opts.Follow = true
		opts.Wait = logFollowWait
	}
}

func formatLogEvent(evt api.LogEvent) string {
	var b strings.Builder
	if ts := api.ParseTime(evt.Time); !ts.IsZero() {
		b.WriteString(ts.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(evt.Level))
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	b.WriteByte(' ')
	b.WriteString(evt.Message)
	if evt.AgreementID != "" {
		fmt.Fprintf(&b, " agreement=%s", shortID(evt.AgreementID))
	}
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, evt.Fields[key])
	}
	return b.String()
}
