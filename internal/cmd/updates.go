package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked updates, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			updates, err := client.List(cmd.Context())
			if err != nil {
				return err
			}

			return printUpdates(cmd.OutOrStdout(), updates)
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			u, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return printUpdate(cmd.OutOrStdout(), u)
		},
	}
}

func newSubmitCmd() *cobra.Command {
	var purge bool

	c := &cobra.Command{
		Use:   "submit <feed.json|->",
		Short: "Merge a feed of updates into the registry",
		Long: `Submit reads {"updates": [...]} from a file or stdin and merges it into the registry.

With --purge, offline updates that never started downloading and are absent from the feed are removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := readFeed(args[0])
			if err != nil {
				return err
			}

			client, err := newClient()
			if err != nil {
				return err
			}

			added, err := client.Submit(cmd.Context(), infos, purge)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d updates merged\n", added, len(infos))

			return nil
		},
	}

	c.Flags().BoolVar(&purge, "purge", false, "Remove stale offline updates missing from the feed")

	return c
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Import a local update package and verify it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			id, err := client.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), id)

			return nil
		},
	}
}

func newOfflineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "offline <id>...",
		Short: "Mark updates as no longer served by the feed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			changed, err := client.MarkOffline(cmd.Context(), args)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d updates marked offline\n", changed, len(args))

			return nil
		},
	}
}

func newActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			u, err := client.Action(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}

			return printUpdate(cmd.OutOrStdout(), u)
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an update's payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			return client.Delete(cmd.Context(), args[0])
		},
	}
}

func newMirrorsCmd() *cobra.Command {
	var rank bool

	c := &cobra.Command{
		Use:   "mirrors <id>",
		Short: "List the mirrors serving an update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			set, err := client.Mirrors(cmd.Context(), args[0], rank)
			if err != nil {
				return err
			}

			return printMirrors(cmd.OutOrStdout(), set)
		},
	}

	c.Flags().BoolVar(&rank, "rank", false, "Probe mirrors and order them by latency")

	return c
}

func newPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <id> <label>",
		Short: "Download an update from the named mirror",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}

			u, err := client.Pin(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			return printUpdate(cmd.OutOrStdout(), u)
		},
	}
}

func newPerformanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "performance-mode <on|off>",
		Short:     "Toggle installer performance mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool

			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

			client, err := newClient()
			if err != nil {
				return err
			}

			return client.SetPerformanceMode(cmd.Context(), enabled)
		},
	}
}
