package commands

import (
	"github.com/spf13/cobra"

	"github.com/purecast-io/purecast/pkg/cli"
)

var stopCmd = &cobra.Command{
	Use:   "stop <username>",
	Short: "Stop a live stream",
	Long: `Stop the given broadcaster's stream. The session flushes its
remaining audio and saves the recording before closing. Stopping a
username that is not streaming is not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := args[0]

		client, _, err := newClient()
		if err != nil {
			return err
		}

		stopped, err := client.Stop(cmd.Context(), owner)
		if err != nil {
			return err
		}
		if !stopped {
			cli.PrintWarning("%s was not streaming", owner)
			return nil
		}

		cli.PrintSuccess("Stopped %s's stream", owner)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
