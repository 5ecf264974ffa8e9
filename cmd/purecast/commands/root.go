package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/purecast-io/purecast/cmd/purecast/internal/api"
	"github.com/purecast-io/purecast/pkg/cli"
)

var (
	// Global flags
	contextName  string
	outputFormat string
	verbose      bool

	// Global configuration (loaded at init time)
	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "purecast",
	Short: "Live audio broadcasting with noise suppression",
	Long: `purecast - broadcast, denoise and relay live audio.

The server accepts one WebRTC audio stream per broadcaster, runs it
through a noise-suppression pipeline and fans the cleaned audio out to
any number of listeners, recording the result as WAV.

Server contexts are stored in ~/.purecast/config.yaml and work like
kubectl contexts.

Examples:
  # Run a server
  purecast serve -f config.yaml

  # Point the CLI at it
  purecast config add-context local --server http://localhost:8440
  purecast config use-context local

  # Inspect streams and recordings
  purecast streams
  purecast streams alice
  purecast recordings list --owner alice
  purecast recordings download 4f1c2a --owner alice`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "server context to use")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configLoadErr stores the error from cli.LoadConfig for deferred reporting.
// Commands that need the config get a clear error via getConfig; commands
// that don't (version, serve) stay usable.
var configLoadErr error

func initConfig() {
	cfg, err := cli.LoadConfig()
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// getConfig returns the CLI configuration.
func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		// Try loading again (e.g. the home dir appeared since init).
		cfg, err := cli.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// resolveContext returns the server context selected by -c, or the current
// context when no flag is given.
func resolveContext() (*cli.Context, error) {
	cfg, err := getConfig()
	if err != nil {
		return nil, err
	}

	ctx, err := cfg.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return nil, fmt.Errorf("no context specified: use -c or set one with 'purecast config use-context'")
		}
		return nil, err
	}
	return ctx, nil
}

// newClient builds an API client for the selected context.
func newClient() (*api.Client, *cli.Context, error) {
	ctx, err := resolveContext()
	if err != nil {
		return nil, nil, err
	}

	var opts []api.Option
	if ctx.Timeout > 0 {
		opts = append(opts, api.WithTimeout(time.Duration(ctx.Timeout)*time.Second))
	}
	client, err := api.New(ctx.ServerURL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("context %q: %w", ctx.Name, err)
	}
	return client, ctx, nil
}

// outputResult writes result in the format selected by -o.
func outputResult(result any) error {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return err
	}
	return cli.Output(result, cli.OutputOptions{Format: format})
}

// isTableOutput reports whether -o selects the table format, so commands can
// substitute the object form for yaml/json.
func isTableOutput() bool {
	return outputFormat == "" || outputFormat == string(cli.FormatTable)
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func printVerbose(format string, args ...any) {
	cli.PrintVerbose(verbose, format, args...)
}
