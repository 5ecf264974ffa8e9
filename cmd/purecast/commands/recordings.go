package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/purecast-io/purecast/cmd/purecast/internal/api"
	"github.com/purecast-io/purecast/pkg/cli"
	"github.com/purecast-io/purecast/pkg/recordings"
)

var recordingsOwner string

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "Manage recordings",
	Long: `List, inspect, download and delete recordings.

The owner comes from --owner, or from the context's default owner when
the flag is not given.

Examples:
  purecast recordings list --owner alice
  purecast recordings get 4f1c2a --owner alice -o yaml
  purecast recordings download 4f1c2a --owner alice --file show.wav
  purecast recordings rm 4f1c2a --owner alice`,
}

// recordingOwner resolves the owner from --owner or the context default.
func recordingOwner(ctx *cli.Context) (string, error) {
	if recordingsOwner != "" {
		return recordingsOwner, nil
	}
	if ctx.Owner != "" {
		return ctx.Owner, nil
	}
	return "", fmt.Errorf("no owner specified: use --owner or set one on the context")
}

var recordingsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List an owner's recordings",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, err := newClient()
		if err != nil {
			return err
		}
		owner, err := recordingOwner(ctx)
		if err != nil {
			return err
		}

		recs, err := client.Recordings(cmd.Context(), owner)
		if err != nil {
			return err
		}
		if len(recs) == 0 && isTableOutput() {
			fmt.Printf("No recordings for %s\n", owner)
			return nil
		}
		return outputResult(api.RecordingTable(recs))
	},
}

var recordingsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one recording's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, err := newClient()
		if err != nil {
			return err
		}
		owner, err := recordingOwner(ctx)
		if err != nil {
			return err
		}

		rec, err := client.Recording(cmd.Context(), owner, args[0])
		if err != nil {
			return err
		}
		return outputRecording(*rec)
	},
}

var recordingsRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a recording",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, err := newClient()
		if err != nil {
			return err
		}
		owner, err := recordingOwner(ctx)
		if err != nil {
			return err
		}

		if err := client.DeleteRecording(cmd.Context(), owner, args[0]); err != nil {
			return err
		}

		cli.PrintSuccess("Recording %s deleted", args[0])
		return nil
	},
}

var recordingsDownloadCmd = &cobra.Command{
	Use:   "download <id>",
	Short: "Download a recording's WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		file, err := cmd.Flags().GetString("file")
		if err != nil {
			return fmt.Errorf("failed to read 'file' flag: %w", err)
		}
		if file == "" {
			file = id + ".wav"
		}

		client, ctx, err := newClient()
		if err != nil {
			return err
		}
		owner, err := recordingOwner(ctx)
		if err != nil {
			return err
		}

		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", file, err)
		}

		n, err := client.DownloadRecording(cmd.Context(), owner, id, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(file)
			return err
		}

		cli.PrintSuccess("Saved %s (%s)", file, cli.FormatBytes(n))
		return nil
	},
}

// outputRecording renders one recording: a one-row table, or the object
// itself for yaml/json.
func outputRecording(rec recordings.Recording) error {
	if isTableOutput() {
		return outputResult(api.RecordingTable{rec})
	}
	return outputResult(rec)
}

func init() {
	recordingsCmd.PersistentFlags().StringVar(&recordingsOwner, "owner", "", "stream owner (defaults to the context's owner)")
	recordingsDownloadCmd.Flags().String("file", "", "output file (default <id>.wav)")

	recordingsCmd.AddCommand(recordingsListCmd)
	recordingsCmd.AddCommand(recordingsGetCmd)
	recordingsCmd.AddCommand(recordingsRmCmd)
	recordingsCmd.AddCommand(recordingsDownloadCmd)

	rootCmd.AddCommand(recordingsCmd)
}
