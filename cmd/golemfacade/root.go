package main

import (
	"github.com/spf13/cobra"
)

const (
	groupDaemon   = "daemon"
	groupProvider = "provider"
	groupInspect  = "inspect"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "golemfacade",
		Short:         "Supervise a Golem provider node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&ctx.socketFlag, "socket", "", "Path to the golemfacade daemon socket")
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")

	root.AddGroup(
		&cobra.Group{ID: groupDaemon, Title: "Daemon:"},
		&cobra.Group{ID: groupProvider, Title: "Provider:"},
		&cobra.Group{ID: groupInspect, Title: "Inspection:"},
	)
	grouped := map[string][]*cobra.Command{
		groupDaemon:   newDaemonCommands(ctx),
		groupProvider: {newGolemCommand(ctx), newTestNotifyCommand(ctx)},
		groupInspect:  {newJobsCommand(ctx), newJobCommand(ctx), newEventsCommand(ctx), newLogsCommand(ctx)},
	}
	for group, cmds := range grouped {
		for _, cmd := range cmds {
			cmd.GroupID = group
			root.AddCommand(cmd)
		}
	}
	root.AddCommand(newDaemonRunCommand(ctx), newConfigCommand(ctx))
	return root
}
