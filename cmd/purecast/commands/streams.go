package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/purecast-io/purecast/cmd/purecast/internal/api"
	"github.com/purecast-io/purecast/pkg/stream"
)

var streamsCmd = &cobra.Command{
	Use:   "streams [username]",
	Short: "List active streams or show one broadcaster's status",
	Long: `Without arguments, lists all active streams on the server.
With a username, shows that broadcaster's session stats.

Examples:
  purecast streams
  purecast streams alice -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			owner := args[0]
			status, err := client.StreamStatus(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if !status.Streaming {
				fmt.Printf("%s is not streaming\n", owner)
				return nil
			}
			return outputStream(*status.Session)
		}

		infos, err := client.Streams(cmd.Context())
		if err != nil {
			return err
		}
		if len(infos) == 0 && isTableOutput() {
			fmt.Println("No active streams")
			return nil
		}
		return outputResult(api.StreamTable(infos))
	},
}

// outputStream renders a single session: a one-row table, or the object
// itself for yaml/json.
func outputStream(info stream.Info) error {
	if isTableOutput() {
		return outputResult(api.StreamTable{info})
	}
	return outputResult(info)
}

func init() {
	rootCmd.AddCommand(streamsCmd)
}
