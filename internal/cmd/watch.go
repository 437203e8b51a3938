package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/updater/internal/events"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream update events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()

			return client.Watch(ctx, func(ev events.Event) {
				if outputFormat == "json" {
					_ = printJSON(out, ev)
					return
				}

				line := fmt.Sprintf("%-18s %s", ev.Kind, ev.ID)

				if ev.Kind != events.UpdateRemoved {
					if u, err := client.Get(context.WithoutCancel(ctx), ev.ID); err == nil {
						line += fmt.Sprintf("  %s %d%%", u.Status, u.Progress)
						if ev.Kind == events.InstallProgress {
							line += fmt.Sprintf(" install %d%%", u.InstallProgress)
						}
					}
				}

				fmt.Fprintln(out, line)
			})
		},
	}
}
