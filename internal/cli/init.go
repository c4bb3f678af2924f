package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/chainvault/internal/config"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Backend  string
	Compress bool
}

// InitResult describes an initialized data directory.
type InitResult struct {
	DataDir string `json:"data_dir"`
	Config  string `json:"config"`
	Backend string `json:"backend"`
	Tail    string `json:"tail"`
	Height  int64  `json:"height"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a data directory",
		Long: `Create a data directory: write its config file, generate the key pair
and write the genesis block.

Example:
  chainvault init --data-dir ./vault --backend leveldb`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initDataDir(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", config.BackendFile, "block store backend (file|leveldb|memory)")
	cmd.Flags().BoolVar(&opts.Compress, "compress", true, "compress record payloads")

	return cmd
}

func initDataDir(ctx context.Context, opts *InitOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cfg.Chain.Backend = opts.Backend
	cfg.Storage.Compress = opts.Compress

	path := filepath.Join(cfg.DataDir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("already initialized: %s exists", path))
	}
	if err := cfg.Write(path); err != nil {
		return WrapExitError(ExitCommandError, "failed to write config", err)
	}
	// Reload through the schema so a bad --backend never leaves a config
	// behind.
	if _, err := config.Load(path); err != nil {
		os.Remove(path)
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}

	n, err := opts.open(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	out := opts.formatter(cmd)
	result := InitResult{
		DataDir: cfg.DataDir,
		Config:  path,
		Backend: cfg.Chain.Backend,
		Tail:    n.Chain.TailHash(),
		Height:  n.Chain.Height(),
	}
	if opts.Format == "json" {
		return out.Success(result)
	}
	out.Pass("initialized %s", cfg.DataDir)
	out.Text("  config:  %s", path)
	out.Text("  backend: %s", cfg.Chain.Backend)
	out.Text("  genesis: %s", result.Tail)
	return nil
}
