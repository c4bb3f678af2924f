// Package cli implements the chainvault command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/chainvault/internal/config"
	"github.com/roach88/chainvault/internal/node"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DataDir    string
	NoColor    bool

	// nodeOptions are appended to every node.Open call (for testing).
	nodeOptions []node.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chainvault CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chainvault",
		Short: "chainvault - a local tamper-evident ledger",
		Long: `A local tamper-evident ledger: a hash-linked block chain, an encrypted
record store attested by it, and a serialized runtime for contracts.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.NoColor {
				color.NoColor = true
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default <data-dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory (default .chainvault)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewBlockCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewContractsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig resolves the settings: --config if given, else the config
// file in the data directory if present, else the defaults. --data-dir
// overrides the file's data_dir.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		dir := o.DataDir
		if dir == "" {
			def, err := config.Default()
			if err != nil {
				return nil, err
			}
			dir = def.DataDir
		}
		candidate := filepath.Join(dir, config.FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	return cfg, nil
}

// logger builds the stderr logger: the configured level, or debug with
// --verbose.
func (o *RootOptions) logger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// openNode loads the settings and opens the node they describe.
func (o *RootOptions) openNode(ctx context.Context, cmd *cobra.Command) (*node.Node, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return o.open(ctx, cmd, cfg)
}

func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*node.Node, error) {
	opts := append([]node.Option{node.WithLogger(o.logger(cmd, cfg))}, o.nodeOptions...)
	n, err := node.Open(ctx, cfg, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open "+cfg.DataDir, err)
	}
	return n, nil
}
