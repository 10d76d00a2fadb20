package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"golemfacade/internal/ipc"
)

func newGolemCommand(ctx *commandContext) *cobra.Command {
	golemCmd := &cobra.Command{
		Use:   "golem",
		Short: "Start or stop yagna and ya-provider inside the running daemon",
	}

	golemCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start yagna and ya-provider and wait until the node is ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				rpcCtx, cancel := rpcContext(cmd, ctx.lifecycleTimeout())
				defer cancel()
				resp, err := client.StartGolem(rpcCtx)
				return reportGolemResponse(cmd.OutOrStdout(), resp, err)
			})
		},
	})

	golemCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop ya-provider and yagna, leaving the daemon running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				rpcCtx, cancel := rpcContext(cmd, ctx.lifecycleTimeout())
				defer cancel()
				resp, err := client.StopGolem(rpcCtx)
				return reportGolemResponse(cmd.OutOrStdout(), resp, err)
			})
		},
	})

	return golemCmd
}

func reportGolemResponse(out io.Writer, resp *ipc.GolemResponse, err error) error {
	if err != nil {
		return err
	}
	if resp == nil {
		return errors.New("missing golem response")
	}
	printGolemStatus(out, resp.Golem)
	if !resp.Ok {
		if resp.Message != "" {
			return errors.New(resp.Message)
		}
		return fmt.Errorf("golem is %s", resp.Golem.Status)
	}
	return nil
}

func printGolemStatus(out io.Writer, status ipc.GolemStatus) {
	fmt.Fprintf(out, "Golem: %s\n", titleLabel(status.Status))
	if status.NodeID != "" {
		fmt.Fprintf(out, "Node: %s\n", status.NodeID)
	}
	if status.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", status.LastError)
	}
}
