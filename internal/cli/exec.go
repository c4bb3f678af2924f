package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chainvault/internal/contract"
	"github.com/roach88/chainvault/internal/ir"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Args       string
	ID         string
	Definition bool
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <contract>",
		Short: "Execute a contract",
		Long: `Execute a registered contract with JSON arguments. Each execution gets
a fresh UUIDv7 execution id unless --id is given; an id is accepted once.

With --definition the argument is the hash of a contract-definition block
(see "contracts --save") instead of a contract name.

Exit codes:
  0 - Execution succeeded
  1 - Execution failed
  2 - Command error

Examples:
  chainvault exec token.transfer --args '{"from":"alice","to":"bob","amount":40}'
  chainvault exec wishlist.add --args '{"owner":"ana","item":"bike"}' --id wish-1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execContract(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "procedure arguments as a JSON object")
	cmd.Flags().StringVar(&opts.ID, "id", "", "execution id (default: a new UUIDv7)")
	cmd.Flags().BoolVar(&opts.Definition, "definition", false, "treat the argument as a contract-definition block hash")

	return cmd
}

func execContract(ctx context.Context, opts *ExecOptions, target string, cmd *cobra.Command) error {
	value, err := parseValue(opts.Args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --args", err)
	}
	args, ok := value.(ir.IRObject)
	if !ok {
		return NewExitError(ExitCommandError, "invalid --args: must be a JSON object")
	}

	id := opts.ID
	if id == "" {
		id = contract.UUIDv7Generator{}.Generate()
	}
	args[contract.ArgExecutionID] = ir.IRString(id)

	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	var c *contract.SmartContract
	if opts.Definition {
		c, err = n.LoadContract(ctx, target)
	} else {
		c, err = n.Contract(target)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown contract "+target, err)
	}

	out := opts.formatter(cmd)
	out.VerboseLog("executing %s as %s", c.Name(), id)
	outcome, _ := c.Execute(ctx, args)

	if outcome.OK() {
		if opts.Format == "json" {
			return out.Success(outcome)
		}
		out.Pass("%s %s", c.Name(), outcome.State)
		out.Text("  execution: %s", outcome.ExecutionID)
		out.Text("  result:    %s", canonical(outcome.Result))
		for _, h := range outcome.Blocks {
			out.Text("  block:     %s", h)
		}
		return nil
	}

	msg := string(outcome.State)
	if outcome.Failure != nil {
		msg = fmt.Sprintf("%s: %s", outcome.Failure.Kind, outcome.Failure.Message)
	}
	if opts.Format == "json" {
		if err := out.Error("E_EXECUTION_FAILED", msg, outcome); err != nil {
			return err
		}
	} else {
		out.Fail("%s %s", c.Name(), msg)
		out.Text("  execution: %s", outcome.ExecutionID)
		for _, h := range outcome.Blocks {
			out.Text("  block:     %s (written before the failure)", h)
		}
	}
	return NewExitError(ExitFailure, "execution failed: "+msg)
}

// ContractInfo describes one registered contract.
type ContractInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	CodeRef     string `json:"code_ref"`
	Description string `json:"description"`
	Definition  string `json:"definition,omitempty"`
}

// ContractsOptions holds flags for the contracts command.
type ContractsOptions struct {
	*RootOptions
	Save bool
}

// NewContractsCommand creates the contracts command.
func NewContractsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContractsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "List the registered contracts",
		Long: `List the registered contracts with their code references.

With --save every definition is recorded as a contract-definition block and
the block hashes are listed; "exec --definition <hash>" runs them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listContracts(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Save, "save", false, "record the definitions on the chain")

	return cmd
}

func listContracts(ctx context.Context, opts *ContractsOptions, cmd *cobra.Command) error {
	n, err := opts.openNode(ctx, cmd)
	if err != nil {
		return err
	}
	defer n.Close()

	var saved map[string]string
	if opts.Save {
		if saved, err = n.SaveDefinitions(ctx); err != nil {
			return WrapExitError(ExitFailure, "failed to save definitions", err)
		}
	}

	defs := n.Registry.List()
	infos := make([]ContractInfo, 0, len(defs))
	for _, d := range defs {
		infos = append(infos, ContractInfo{
			Name:        d.Name,
			Version:     d.Version,
			CodeRef:     d.CodeRef(),
			Description: d.Description,
			Definition:  saved[d.Name],
		})
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(infos)
	}
	for _, c := range infos {
		out.Text("%-18s %s  %s", c.Name, c.Version, c.Description)
		if c.Definition != "" {
			out.Text("%-18s saved as %s", "", c.Definition)
		}
	}
	return nil
}
