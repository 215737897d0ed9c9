package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/kaioken/internal/config"
	"github.com/wesleyorama2/kaioken/internal/console"
	"github.com/wesleyorama2/kaioken/internal/engine"
	"github.com/wesleyorama2/kaioken/internal/httpexec"
	"github.com/wesleyorama2/kaioken/internal/plan"
)

var runFlags struct {
	configPath string
	method     string
	headers    []string
	body       string

	concurrency     int
	duration        time.Duration
	maxRequests     int64
	rate            float64
	rampUp          time.Duration
	warmup          time.Duration
	thinkTime       time.Duration
	arrivalRate     float64
	maxVUs          int

	noLatencyCorrection bool
	noFollowRedirects   bool
	insecureSkipVerify  bool
	failFast            bool
	dryRun              bool

	output string
	quiet  bool
}

var runCmd = &cobra.Command{
	Use:   "run [URL]",
	Short: "Run a load test against a target",
	Long: `run executes a load test either from a scenario file (--config) or, for a
single endpoint, straight from flags with URL given positionally.

Quick mode:
  kaioken run https://api.example.com/widgets -c 50 -d 30s

Config mode:
  kaioken run --config checkout.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.configPath, "config", "f", "", "run plan file (YAML or JSON)")
	f.StringVarP(&runFlags.method, "method", "X", "GET", "HTTP method (quick mode)")
	f.StringArrayVarP(&runFlags.headers, "header", "H", nil, "request header \"Name: Value\" (quick mode, repeatable)")
	f.StringVarP(&runFlags.body, "body", "b", "", "request body (quick mode)")

	f.IntVarP(&runFlags.concurrency, "concurrency", "c", 10, "closed-loop: number of virtual users")
	f.DurationVarP(&runFlags.duration, "duration", "d", 30*time.Second, "run duration")
	f.Int64VarP(&runFlags.maxRequests, "max-requests", "n", 0, "stop after this many requests (0 = unbounded)")
	f.Float64VarP(&runFlags.rate, "rate", "r", 0, "closed-loop: cap requests/sec per VU pool (0 = uncapped)")
	f.DurationVar(&runFlags.rampUp, "ramp-up", 0, "closed-loop: linear ramp to full concurrency")
	f.DurationVar(&runFlags.warmup, "warmup", 0, "discard metrics for this long at the start of the run")
	f.DurationVar(&runFlags.thinkTime, "think-time", 0, "pause between a VU's iterations")
	f.Float64Var(&runFlags.arrivalRate, "arrival-rate", 0, "open-loop: target requests/sec (selects the open-loop model)")
	f.IntVar(&runFlags.maxVUs, "max-vus", 0, "open-loop: VU pool ceiling")

	f.BoolVar(&runFlags.noLatencyCorrection, "no-latency-correction", false, "report wallclock latency instead of service-time-corrected latency")
	f.BoolVar(&runFlags.noFollowRedirects, "no-follow-redirects", false, "don't follow HTTP redirects")
	f.BoolVar(&runFlags.insecureSkipVerify, "insecure-skip-verify", false, "skip TLS certificate verification")
	f.BoolVar(&runFlags.failFast, "fail-fast", false, "abort the run as soon as a threshold fails (thresholds are re-checked on every snapshot)")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "load and validate the plan, print it, and exit without making requests")

	f.StringVarP(&runFlags.output, "output", "o", "", "write the RunResult JSON to this file in addition to stdout summary")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "suppress live progress output")
}

func runRun(cmd *cobra.Command, args []string) error {
	p, err := buildPlan(args)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	exec := buildExecutor(p)

	var con *console.Console
	if !runFlags.quiet {
		con = console.New(console.Config{Name: p.Name, Writer: os.Stdout})
	}

	result, runErr := engine.Run(ctx, p, exec, engine.Options{Console: con, SnapshotInterval: time.Second})
	if runErr != nil {
		return &ExitError{Code: 1, Err: runErr}
	}

	if runFlags.output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling result: %w", err)
		}
		if err := os.WriteFile(runFlags.output, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", runFlags.output, err)
		}
	}

	if !result.Thresholds.Passed {
		return &ExitError{Code: 4, Err: fmt.Errorf("one or more thresholds failed")}
	}
	return nil
}

// buildExecutor constructs the httpexec.Client for a plan, applying the
// target's transport options plus whichever default auth credential and
// client certificate the target configures.
func buildExecutor(p *plan.RunPlan) *httpexec.Client {
	opts := []httpexec.Option{
		httpexec.WithTimeout(p.Target.Timeout),
		httpexec.WithInsecureSkipVerify(p.Target.InsecureSkipVerify),
		httpexec.WithKeepAlive(p.Target.KeepAlive),
		httpexec.WithProxy(p.Target.ProxyURL),
		httpexec.WithFollowRedirects(p.Target.FollowRedirects),
		httpexec.WithClientCert(p.Target.ClientCertFile, p.Target.ClientKeyFile),
	}
	switch p.Target.Auth.Kind {
	case plan.AuthBearer:
		opts = append(opts, httpexec.WithBearerAuth(p.Target.Auth.Token))
	case plan.AuthBasic:
		opts = append(opts, httpexec.WithBasicAuth(p.Target.Auth.Username, p.Target.Auth.Password))
	}
	return httpexec.New(opts...)
}

// buildPlan assembles a plan.RunPlan either from --config or from the
// quick-mode flags plus the positional URL.
func buildPlan(args []string) (*plan.RunPlan, error) {
	if runFlags.configPath != "" {
		return config.Load(runFlags.configPath)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("run requires a URL (quick mode) or --config (config mode)")
	}
	return quickPlan(args[0])
}

func quickPlan(url string) (*plan.RunPlan, error) {
	headers := make(map[string]string, len(runFlags.headers))
	for _, h := range runFlags.headers {
		name, value, ok := splitHeader(h)
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want \"Name: Value\"", h)
		}
		headers[name] = value
	}

	load := plan.Load{
		Duration:  runFlags.duration,
		Warmup:    runFlags.warmup,
		ThinkTime: runFlags.thinkTime,
	}
	if runFlags.arrivalRate > 0 {
		load.Kind = plan.LoadOpen
		load.RPS = runFlags.arrivalRate
		load.MaxVUs = runFlags.maxVUs
		if load.MaxVUs == 0 {
			load.MaxVUs = runFlags.concurrency
		}
	} else {
		load.Kind = plan.LoadClosed
		load.VUs = runFlags.concurrency
		load.MaxRequests = runFlags.maxRequests
		load.Rate = runFlags.rate
		load.RampUp = runFlags.rampUp
	}

	return &plan.RunPlan{
		Name: url,
		Target: plan.Target{
			BaseURL:         url,
			Method:          runFlags.method,
			Headers:         headers,
			Body:            runFlags.body,
			FollowRedirects: !runFlags.noFollowRedirects,
			KeepAlive:       true,
			Timeout:         30 * time.Second,
			InsecureSkipVerify: runFlags.insecureSkipVerify,
		},
		Load: load,
		Scenarios: []plan.Scenario{{
			Name:   "default",
			Weight: 1,
			Request: plan.RequestTemplate{
				Method:  runFlags.method,
				URL:     "",
				Headers: headers,
				Body:    runFlags.body,
			},
		}},
		LatencyCorrection: !runFlags.noLatencyCorrection && load.Kind == plan.LoadOpen,
		FailFast:          runFlags.failFast,
	}, nil
}

func splitHeader(s string) (name, value string, ok bool) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(s[:idx])
	value = strings.TrimSpace(s[idx+1:])
	return name, value, name != ""
}
