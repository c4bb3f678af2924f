package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chainvault/internal/fault"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/store"
)

// parseValue decodes a JSON argument into an IR value. Numbers must be
// integers.
func parseValue(s string) (ir.IRValue, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data")
	}
	return ir.ToIRValue(v)
}

// canonical renders v as canonical JSON.
func canonical(v ir.IRValue) json.RawMessage {
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf("%q", err.Error()))
	}
	return b
}

// errorCode maps a fault kind to a CLI error code.
func errorCode(err error) string {
	if kind := fault.KindOf(err); kind != "" {
		return "E_" + string(kind)
	}
	return "E_INTERNAL"
}

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Encrypt bool
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <id> <json>",
		Short: "Store a record and attest it on the chain",
		Long: `Store a JSON value under id. The write appends a storage-write block
carrying the value's content digest.

Examples:
  chainvault put bal:alice '{"balance":100}'
  chainvault put note:1 '"meet at noon"' --encrypt`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return putRecord(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Encrypt, "encrypt", false, "seal the payload")

	return cmd
}

func putRecord(ctx context.Context, opts *PutOptions, id, raw string, cmd *cobra.Command) error {
	value, err := parseValue(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad value", err)
	}

	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	receipt, err := n.Store.SaveData(ctx, id, value, store.SaveOptions{Encrypted: opts.Encrypt})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to save "+id, err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(receipt)
	}
	out.Pass("saved %s", id)
	out.Text("  block:  %s", receipt.BlockHash)
	out.Text("  digest: %s", receipt.ContentDigest)
	return nil
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a record",
		Long: `Print the value stored under id as canonical JSON, decrypting it if
needed.

Exit codes:
  0 - Record printed
  1 - Record missing, undecryptable or corrupt
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getRecord(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
}

func getRecord(ctx context.Context, opts *RootOptions, id string, cmd *cobra.Command) error {
	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	out := opts.formatter(cmd)
	value, err := n.Store.LoadData(ctx, id)
	if err != nil {
		if opts.Format == "json" {
			if ferr := out.Error(errorCode(err), err.Error(), nil); ferr != nil {
				return ferr
			}
		}
		return WrapExitError(ExitFailure, "failed to load "+id, err)
	}
	if opts.Format == "json" {
		return out.Success(canonical(value))
	}
	out.Text("%s", canonical(value))
	return nil
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <id>",
		Short:         "List every attested write of a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return recordHistory(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
}

func recordHistory(ctx context.Context, opts *RootOptions, id string, cmd *cobra.Command) error {
	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	entries, err := n.Store.History(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read history", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(entries)
	}
	if len(entries) == 0 {
		out.Text("No writes of %s.", id)
		return nil
	}
	for _, e := range entries {
		sealed := ""
		if e.Encrypted {
			sealed = " (encrypted)"
		}
		out.Text("%d  %s  block %s  digest %s%s",
			e.Seq, e.WrittenAt.Format("2006-01-02T15:04:05.000Z"), e.BlockHash, e.ContentDigest, sealed)
	}
	return nil
}

// ValidationResult is the verdict of the validate command.
type ValidationResult struct {
	ID        string `json:"id"`
	BlockHash string `json:"block_hash"`
	Valid     bool   `json:"valid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <id> <json> <block-hash>",
		Short: "Check a value against the block that attests it",
		Long: `Check that the block at block-hash is an intact storage-write block
for id whose content digest matches the given value.

Exit codes:
  0 - Value is attested
  1 - Value is not attested
  2 - Command error

Example:
  chainvault validate bal:alice '{"balance":100}' 3f9a...`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateRecord(cmd.Context(), rootOpts, args[0], args[1], args[2], cmd)
		},
	}
}

func validateRecord(ctx context.Context, opts *RootOptions, id, raw, blockHash string, cmd *cobra.Command) error {
	value, err := parseValue(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "bad value", err)
	}

	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	ok, err := n.Store.Validate(ctx, id, value, blockHash)
	if err != nil {
		return WrapExitError(ExitCommandError, "validation could not run", err)
	}

	out := opts.formatter(cmd)
	result := ValidationResult{ID: id, BlockHash: blockHash, Valid: ok}
	if ok {
		if opts.Format == "json" {
			return out.Success(result)
		}
		out.Pass("%s is attested by %s", id, blockHash)
		return nil
	}

	if opts.Format == "json" {
		if err := out.Error("E_NOT_ATTESTED", "value is not attested by the block", result); err != nil {
			return err
		}
	} else {
		out.Fail("%s is not attested by %s", id, blockHash)
	}
	return NewExitError(ExitFailure, "value is not attested")
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Cross-check every record against its attesting block",
		Long: `Load every record and validate it against the block recorded for it.

Exit codes:
  0 - Every record checks out
  1 - One or more records disagree with the chain
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return auditRecords(cmd.Context(), rootOpts, cmd)
		},
	}
}

func auditRecords(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	findings, err := n.Store.Audit(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "audit could not run", err)
	}

	out := opts.formatter(cmd)
	if len(findings) == 0 {
		if opts.Format == "json" {
			return out.Success(findings)
		}
		out.Pass("all records attested")
		return nil
	}

	if opts.Format == "json" {
		if err := out.Error("E_AUDIT_FAILED", fmt.Sprintf("%d record(s) disagree with the chain", len(findings)), findings); err != nil {
			return err
		}
	} else {
		for _, f := range findings {
			out.Fail("%s (block %s): %s", f.ID, f.BlockHash, f.Reason)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) disagree with the chain", len(findings)))
}
