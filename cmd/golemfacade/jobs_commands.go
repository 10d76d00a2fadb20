package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"golemfacade/internal/api"
	"golemfacade/internal/ipc"
	"golemfacade/internal/journal"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var sinceFlag string
	var outputFlag string
	var offline bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List agreements computed by this node",
		Long: "List agreements touched since a point in time. --since accepts a duration " +
			"such as 24h or 7d, an RFC3339 timestamp, or \"all\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			since, err := parseSince(sinceFlag, time.Now())
			if err != nil {
				return err
			}

			var list []api.Job
			if offline {
				list, err = offlineJobs(cmd, ctx, since)
			} else {
				err = ctx.withClient(func(client *ipc.Client) error {
					rpcCtx, cancel := rpcContext(cmd, rpcTimeout)
					defer cancel()
					resp, err := client.ListJobs(rpcCtx, since)
					if err != nil {
						return err
					}
					list = resp.Jobs
					return nil
				})
			}
			if err != nil {
				return err
			}

			if format != outputTable {
				return writeStructured(cmd, format, api.JobListResponse{Jobs: list})
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs found")
				return nil
			}
			fmt.Fprint(out, renderTable(jobColumns, jobRows(list)))
			return nil
		},
	}
	cmd.Flags().StringVar(&sinceFlag, "since", "24h", "Only list jobs updated since this duration or timestamp")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&offline, "offline", false, "Read the job journal directly instead of asking the daemon")
	return cmd
}

func offlineJobs(cmd *cobra.Command, ctx *commandContext, since time.Time) ([]api.Job, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, errors.New("the job journal is disabled (journal.enabled = false)")
	}
	store, err := journal.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()
	list, err := store.ListJobs(cmd.Context(), since)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(list), nil
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect a single agreement",
	}

	var outputFlag string
	showCmd := &cobra.Command{
		Use:   "show [agreement-id]",
		Short: "Show one job, or the job being computed when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				rpcCtx, cancel := rpcContext(cmd, rpcTimeout)
				defer cancel()
				resp, err := client.DescribeJob(rpcCtx, id)
				if err != nil {
					return err
				}
				if !resp.Found {
					if id == "" {
						fmt.Fprintln(cmd.OutOrStdout(), "No job is being computed")
						return nil
					}
					return fmt.Errorf("job %s not found", id)
				}
				if format != outputTable {
					return writeStructured(cmd, format, api.JobResponse{Job: resp.Job})
				}
				printJobDetails(cmd.OutOrStdout(), resp.Job, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	showCmd.Flags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json or yaml")
	jobCmd.AddCommand(showCmd)
	return jobCmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var outputFlag string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent daemon events",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(outputFlag)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				rpcCtx, cancel := rpcContext(cmd, rpcTimeout)
				defer cancel()
				resp, err := client.Events(rpcCtx, limit)
				if err != nil {
					return err
				}
				if format != outputTable {
					return writeStructured(cmd, format, api.EventListResponse{Events: resp.Events})
				}
				out := cmd.OutOrStdout()
				if len(resp.Events) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				fmt.Fprint(out, renderTable(eventColumns, eventRows(resp.Events)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

// parseSince accepts "", "all", Go durations, whole days ("7d") and RFC3339.
func parseSince(raw string, now time.Time) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" || strings.EqualFold(value, "all") {
		return time.Time{}, nil
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since %q: duration must not be negative", raw)
		}
		return now.Add(-d), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: use a duration like 24h or 7d, or an RFC3339 timestamp", raw)
}

var jobColumns = []tableColumn{
	{header: "Agreement"},
	{header: "Status"},
	{header: "Payment"},
	{header: "Reward", align: alignRight},
	{header: "Confirmed", align: alignRight},
	{header: "Updated"},
}

func jobRows(list []api.Job) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			shortID(job.ID),
			titleLabel(job.Status),
			titleLabel(job.PaymentStatus),
			job.Reward,
			job.Confirmed,
			displayTime(job.UpdatedAt),
		})
	}
	return rows
}

var eventColumns = []tableColumn{
	{header: "Time"},
	{header: "Severity"},
	{header: "Kind"},
	{header: "Message"},
}

func eventRows(events []api.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		message := ev.Message
		if ev.Error != "" {
			message = fmt.Sprintf("%s: %s", message, ev.Error)
		}
		rows = append(rows, []string{displayTime(ev.Time), strings.ToUpper(ev.Severity), ev.Kind, message})
	}
	return rows
}

func printJobDetails(out io.Writer, job api.Job, colorize bool) {
	fmt.Fprintf(out, "Agreement:  %s\n", job.ID)
	fmt.Fprintf(out, "Requestor:  %s\n", valueOrDash(job.RequestorID))
	fmt.Fprintf(out, "Status:     %s\n", paintJobStatus(job.Status, colorize))
	fmt.Fprintf(out, "Payment:    %s\n", titleLabel(job.PaymentStatus))
	if job.Terminated {
		fmt.Fprintf(out, "Terminated: %s\n", valueOrDash(job.TerminationCode))
	}
	fmt.Fprintf(out, "Created:    %s\n", displayTime(job.CreatedAt))
	fmt.Fprintf(out, "Updated:    %s\n", displayTime(job.UpdatedAt))
	fmt.Fprintf(out, "Reward:     %s GLM (confirmed %s GLM)\n", valueOrDash(job.Reward), valueOrDash(job.Confirmed))
	fmt.Fprintln(out)

	fmt.Fprint(out, renderTable(
		[]tableColumn{{header: "Rate"}, {header: "Price", align: alignRight}, {header: "Usage", align: alignRight}},
		[][]string{
			{"Start", valueOrDash(job.Price.Start), valueOrDash(job.Usage.Start)},
			{"GPU sec", valueOrDash(job.Price.GPU), valueOrDash(job.Usage.GPU)},
			{"Duration sec", valueOrDash(job.Price.Duration), valueOrDash(job.Usage.Duration)},
			{"Requests", valueOrDash(job.Price.Requests), valueOrDash(job.Usage.Requests)},
		},
	))

	if len(job.Payments) == 0 {
		return
	}
	fmt.Fprintln(out)
	rows := make([][]string, 0, len(job.Payments))
	for _, p := range job.Payments {
		rows = append(rows, []string{p.ID, p.Amount, valueOrDash(p.Platform), displayTime(p.Timestamp)})
	}
	fmt.Fprint(out, renderTable(
		[]tableColumn{{header: "Payment"}, {header: "Amount", align: alignRight}, {header: "Platform"}, {header: "Time"}},
		rows,
	))
}

func paintJobStatus(status string, colorize bool) string {
	label := titleLabel(status)
	return paint(label, jobStatusKind(status).color(), colorize)
}

// shortID keeps agreement ids, which are 64 hex characters, readable in tables.
func shortID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "…" + id[len(id)-6:]
}

func displayTime(value string) string {
	ts := api.ParseTime(value)
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
