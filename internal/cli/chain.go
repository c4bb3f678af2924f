package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chainvault/internal/chain"
)

// BlockView is a block plus the outcome of verifying it.
type BlockView struct {
	chain.Block
	Verified bool `json:"verified"`
}

// NewBlockCommand creates the block command.
func NewBlockCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "block <hash>",
		Short: "Print one block",
		Long: `Print the block stored under hash and whether its hash and link to its
predecessor verify.

Exit codes:
  0 - Block printed and verified
  1 - Block missing or failed verification
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showBlock(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
}

func showBlock(ctx context.Context, opts *RootOptions, hash string, cmd *cobra.Command) error {
	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	out := opts.formatter(cmd)
	b, err := n.Chain.ReadBlock(ctx, hash)
	if err != nil {
		if opts.Format == "json" {
			if ferr := out.Error(errorCode(err), err.Error(), nil); ferr != nil {
				return ferr
			}
		}
		return WrapExitError(ExitFailure, "failed to read block", err)
	}
	view := BlockView{Block: b, Verified: n.Chain.VerifyBlock(ctx, hash)}

	if opts.Format == "json" {
		if err := out.Success(view); err != nil {
			return err
		}
	} else {
		out.Text("block %d  %s", b.ID, b.Hash)
		out.Text("  type:      %s", b.Data.Type)
		out.Text("  prev:      %s", b.PrevHash)
		out.Text("  timestamp: %s", time.UnixMilli(b.Timestamp).UTC().Format(time.RFC3339Nano))
		out.Text("  body:      %s", canonical(b.Data.Body))
		if view.Verified {
			out.Pass("verified")
		} else {
			out.Fail("failed verification")
		}
	}
	if !view.Verified {
		return NewExitError(ExitFailure, "block "+hash+" failed verification")
	}
	return nil
}

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Last int
	From string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of the chain",
		Long: `Walk the chain from the tail (or --from) back to genesis, recomputing
every block hash and checking every link.

Exit codes:
  0 - Chain is valid
  1 - Chain failed verification
  2 - Command error

Examples:
  chainvault verify
  chainvault verify --last 100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyChain(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Last, "last", 0, "check only the newest N blocks (0 = all)")
	cmd.Flags().StringVar(&opts.From, "from", "", "start at this block hash instead of the tail")

	return cmd
}

func verifyChain(ctx context.Context, opts *VerifyOptions, cmd *cobra.Command) error {
	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	report, err := n.Chain.Verify(ctx, chain.VerifyOptions{Last: opts.Last, From: opts.From})
	if err != nil {
		return WrapExitError(ExitCommandError, "verification could not run", err)
	}

	out := opts.formatter(cmd)
	if report.Valid {
		if opts.Format == "json" {
			return out.Success(report)
		}
		out.Pass("chain valid (%d blocks checked, tail %s)", report.Checked, n.Chain.TailHash())
		return nil
	}

	msg := fmt.Sprintf("block %s: %s", report.BadHash, report.Reason)
	if opts.Format == "json" {
		if err := out.Error("E_CHAIN_INVALID", msg, report); err != nil {
			return err
		}
	} else {
		out.Fail("chain invalid after %d blocks: %s", report.Checked, msg)
	}
	return NewExitError(ExitFailure, "chain failed verification")
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Limit int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "log",
		Short:         "List blocks, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listBlocks(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum blocks to list (0 = all)")

	return cmd
}

func listBlocks(ctx context.Context, opts *LogOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must be >= 0")
	}

	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	blocks, err := n.Chain.Blocks(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to walk chain", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(blocks)
	}
	for _, b := range blocks {
		out.Text("%6d  %s  %-20s %s",
			b.ID, b.Hash, b.Data.Type, time.UnixMilli(b.Timestamp).UTC().Format(time.RFC3339))
	}
	return nil
}
