package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chainvault/internal/harness"
	"github.com/roach88/chainvault/internal/seal"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files",
		Long: `Run scenario files against fresh in-memory ledgers.

Each scenario seeds records, executes contracts, checks the expected
outcomes and assertions, and compares the resulting chain with
<scenarios-dir>/golden/<name>.golden when that file exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  chainvault test ./scenarios
  chainvault test ./scenarios --filter "token-*"
  chainvault test ./scenarios --update
  chainvault test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	out := opts.formatter(cmd)
	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return out.Success(TestResult{Scenarios: []ScenarioResult{}})
		}
		out.Text("No scenarios found.")
		return nil
	}

	// One key pair serves every run; chain contents do not depend on it.
	keys, err := seal.Generate(seal.MinKeyBits)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate keys", err)
	}
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := harness.Options{
		Keys:   keys,
		Logger: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})),
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, scenarioFile := range scenarioFiles {
		res := runScenario(ctx, scenarioFile, opts, hopts)
		if res.Pass {
			result.Passed++
			out.Pass("%s", res.Name)
		} else {
			result.Failed++
			out.Fail("%s", res.Name)
			for _, e := range res.Errors {
				out.Text("  %s", e)
			}
		}
		result.Scenarios = append(result.Scenarios, res)
	}

	if opts.Format == "json" {
		if result.Failed == 0 {
			return out.Success(result)
		}
		if err := out.Error("E_TEST_FAILED", fmt.Sprintf("%d scenario(s) failed", result.Failed), result); err != nil {
			return err
		}
	} else {
		out.Text("")
		out.Text("Test Summary: %d passed, %d failed, %d total", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// findScenarioFiles finds all YAML scenario files in a directory. The golden
// subdirectory is skipped.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario executes a single scenario and returns the result.
func runScenario(ctx context.Context, scenarioFile string, opts *TestOptions, hopts harness.Options) ScenarioResult {
	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(scenarioFile),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.Run(ctx, scenario, hopts)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}
	if !result.Pass {
		return ScenarioResult{Name: scenario.Name, Errors: result.Errors}
	}

	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("failed to render chain: %v", err)},
		}
	}

	goldenPath := goldenFilePath(scenarioFile)
	if opts.Update {
		if err := updateGoldenFile(goldenPath, snapshot); err != nil {
			return ScenarioResult{
				Name:   scenario.Name,
				Errors: []string{fmt.Sprintf("failed to update golden file: %v", err)},
			}
		}
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	golden, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		// No golden file: assertions only.
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("golden comparison failed: %v", err)},
		}
	}
	if !bytes.Equal(golden, snapshot) {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{"chain does not match golden file (run with --update to regenerate)"},
		}
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// updateGoldenFile writes snapshot as the golden file.
func updateGoldenFile(goldenPath string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}
