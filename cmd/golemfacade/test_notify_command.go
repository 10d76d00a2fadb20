package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"golemfacade/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if cfg := ctx.configValue(); cfg != nil && strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "Notifications are disabled; set notifications.ntfy_topic to enable them")
				return nil
			}
			return ctx.withClient(func(client *ipc.Client) error {
				rpcCtx, cancel := rpcContext(cmd, rpcTimeout)
				defer cancel()
				resp, err := client.TestNotification(rpcCtx)
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				if !resp.Sent {
					if resp.Message != "" {
						return fmt.Errorf("notification not sent: %s", resp.Message)
					}
					return errors.New("notification not sent")
				}
				fmt.Fprintln(out, "Test notification sent")
				return nil
			})
		},
	}
}
