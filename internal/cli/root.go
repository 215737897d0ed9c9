// Package cli wires the cobra command tree: run (execute a load test) and
// compare (regression-check two RunResult files).
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "kaioken",
	Short:   "A closed- and open-loop HTTP load-testing tool",
	Version: version,
	Long: `kaioken drives HTTP load against a target using either a closed-loop
(fixed concurrency) or open-loop (fixed arrival rate) model, scores the run
against latency/error-rate/throughput thresholds, and can regression-check
one run's result file against another.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// ExitError lets a subcommand request a specific process exit code (3
// regressions, 4 thresholds failed, 5 load-model mismatch) rather than the
// bare 1 every other error maps to.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute adds all child commands to the root command, runs it, and
// returns the process exit code to use. This is called by main.main().
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

func init() {
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(compareCmd)
}
