package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/kaioken/internal/compare"
)

var compareFlags struct {
	thresholdRPS       float64
	thresholdErrorRate float64
	thresholdP99       float64
	thresholdP999      float64
	force              bool
	json               bool
}

var compareCmd = &cobra.Command{
	Use:   "compare BASELINE CURRENT",
	Short: "Regression-check one run's result file against another",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompare,
}

func init() {
	f := compareCmd.Flags()
	f.Float64Var(&compareFlags.thresholdRPS, "threshold-rps", 10, "max acceptable throughput regression, percent")
	f.Float64Var(&compareFlags.thresholdErrorRate, "threshold-error-rate", 50, "max acceptable relative error-rate increase, percent")
	f.Float64Var(&compareFlags.thresholdP99, "threshold-p99", 20, "max acceptable p50/p90/p95/p99 latency regression, percent")
	f.Float64Var(&compareFlags.thresholdP999, "threshold-p999", 30, "max acceptable p99.9 latency regression, percent")
	f.BoolVar(&compareFlags.force, "force", false, "compare runs even if their load models differ")
	f.BoolVar(&compareFlags.json, "json", false, "emit the comparison as JSON instead of a console table")
}

func runCompare(cmd *cobra.Command, args []string) error {
	th := compare.Thresholds{
		RPS:       compareFlags.thresholdRPS,
		ErrorRate: compareFlags.thresholdErrorRate,
		P99:       compareFlags.thresholdP99,
		P999:      compareFlags.thresholdP999,
		Force:     compareFlags.force,
	}

	result, modelDescriptions, err := compare.Compare(args[0], args[1], th)
	if err != nil {
		if modelDescriptions != nil {
			return &ExitError{Code: 5, Err: err}
		}
		return &ExitError{Code: 1, Err: err}
	}

	out := cmd.OutOrStdout()
	if compareFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printComparisonTable(out, result, modelDescriptions)
	}

	if result.HasRegressions {
		return &ExitError{Code: 3, Err: fmt.Errorf("%d metric(s) regressed beyond threshold", len(result.Regressions))}
	}
	return nil
}

func printComparisonTable(out io.Writer, r *compare.Result, modelDescriptions []string) {
	fmt.Fprintf(out, "baseline: %s (%s)\n", r.BaselineFile, modelDescriptions[0])
	fmt.Fprintf(out, "current:  %s (%s)\n\n", r.CurrentFile, modelDescriptions[1])

	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tBASELINE\tCURRENT\tDELTA\tCHANGE")
	for _, m := range r.Metrics {
		mark := " "
		switch {
		case m.Regressed:
			mark = "!"
		case m.Improved:
			mark = "+"
		}
		fmt.Fprintf(w, "%s %s\t%.2f%s\t%.2f%s\t%+.2f%s\t%+.1f%%\n",
			mark, m.Name, m.Baseline, m.Unit, m.Current, m.Unit, m.Delta, m.Unit, m.DeltaPct)
	}
	w.Flush()

	if len(r.Warnings) > 0 {
		fmt.Fprintln(out, "\nwarnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(out, "  - %s\n", warn)
		}
	}

	if r.HasRegressions {
		fmt.Fprintln(out, "\nregressions:")
		for _, reg := range r.Regressions {
			fmt.Fprintf(out, "  - %s: %.2f -> %.2f (%+.1f%%, threshold %.1f%%)\n",
				reg.Metric, reg.Baseline, reg.Current, reg.DeltaPct, reg.ThresholdPct)
		}
	}
}
