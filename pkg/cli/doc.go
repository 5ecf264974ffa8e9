// Package cli provides shared helpers for the purecast command-line tool.
//
// This package includes:
//   - Configuration management (named server contexts, kubectl style)
//   - Output formatting (table, YAML, JSON, raw)
//   - Styled terminal output via lipgloss
//
// Configuration is stored in ~/.purecast/config.yaml. Each context points
// at one purecast server:
//
//	cfg, err := cli.LoadConfig()
//	ctx, err := cfg.ResolveContext("") // current context
//
//	cli.Output(result, cli.OutputOptions{Format: cli.FormatTable})
package cli
