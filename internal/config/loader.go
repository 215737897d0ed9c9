package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/kaioken/internal/plan"
)

// Load reads a run document from path (YAML or JSON, chosen by
// extension), validates it, and materializes the engine's RunPlan.
// Environment variable interpolation of uppercase ${VAR} tokens happens
// here, once, as the final materialization step.
func Load(path string) (*plan.RunPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	jsonData, err := toJSON(path, data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := validateSchema(jsonData); err != nil {
		return nil, fmt.Errorf("%s: schema validation failed: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return materialize(&doc)
}

// toJSON normalizes YAML or JSON input to JSON bytes so the same JSON
// Schema validator handles either format. yaml.v3 decodes mappings as
// map[string]interface{} already, so round-tripping through
// encoding/json is safe.
func toJSON(path string, data []byte) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return data, nil
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func materialize(doc *Document) (*plan.RunPlan, error) {
	target, err := materializeTarget(doc.Target)
	if err != nil {
		return nil, err
	}

	load, err := materializeLoad(doc.Load)
	if err != nil {
		return nil, err
	}

	scenarios := make([]plan.Scenario, 0, len(doc.Scenarios))
	for _, sc := range doc.Scenarios {
		extract := make([]plan.Extraction, 0, len(sc.Extract))
		for _, e := range sc.Extract {
			extract = append(extract, plan.Extraction{
				Name:   e.Name,
				Source: e.Source,
				Path:   e.Path,
				Regex:  e.Regex,
				Group:  e.Group,
			})
		}
		scenarios = append(scenarios, plan.Scenario{
			Name:      sc.Name,
			Weight:    sc.Weight,
			DependsOn: sc.DependsOn,
			Request: plan.RequestTemplate{
				Method:  strings.ToUpper(sc.Request.Method),
				URL:     resolveUppercaseEnv(sc.Request.URL),
				Headers: resolveUppercaseEnvMap(sc.Request.Headers),
				Body:    resolveUppercaseEnv(sc.Request.Body),
			},
			Extract: extract,
			Tags:    sc.Tags,
		})
	}

	checks := make([]plan.Check, 0, len(doc.Checks))
	for _, c := range doc.Checks {
		checks = append(checks, plan.Check{Name: c.Name, Expression: c.Expression})
	}

	thresholds := make([]plan.Threshold, 0, len(doc.Thresholds))
	for metric, expr := range doc.Thresholds {
		th, err := materializeThreshold(metric, expr)
		if err != nil {
			return nil, err
		}
		thresholds = append(thresholds, th)
	}

	return &plan.RunPlan{
		Name:               doc.Name,
		Target:             target,
		Load:               load,
		Scenarios:          scenarios,
		Checks:             checks,
		Thresholds:         thresholds,
		CookieJar:          doc.CookieJar,
		LatencyCorrection:  !doc.NoLatencyCorrection && load.Kind == plan.LoadOpen,
		CountNon2xxAsError: countNon2xxAsError(doc.CountNon2xxAsError),
		FailFast:           doc.FailFast,
		FailOnCheck:        doc.FailOnCheck,
		Seed:               resolveSeed(doc.Seed),
	}, nil
}

// countNon2xxAsError applies the documented default (true) when the
// document omits the field; an explicit false is honored as given.
func countNon2xxAsError(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func resolveUppercaseEnv(s string) string {
	return plan.ResolveEnvironment(s)
}

func resolveUppercaseEnvMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = plan.ResolveEnvironment(v)
	}
	return out
}

func materializeTarget(t TargetConfig) (plan.Target, error) {
	connectTimeout, err := parseDuration(t.ConnectTimeout)
	if err != nil {
		return plan.Target{}, fmt.Errorf("target.connectTimeout: %w", err)
	}
	timeout, err := parseDuration(t.Timeout)
	if err != nil {
		return plan.Target{}, fmt.Errorf("target.timeout: %w", err)
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	method := t.Method
	if method == "" {
		method = "GET"
	}
	return plan.Target{
		BaseURL:            resolveUppercaseEnv(t.BaseURL),
		Method:             strings.ToUpper(method),
		Headers:            resolveUppercaseEnvMap(t.Headers),
		Body:               resolveUppercaseEnv(t.Body),
		InsecureSkipVerify: t.InsecureSkipVerify,
		FollowRedirects:    !t.NoFollowRedirects,
		ProxyURL:           resolveUppercaseEnv(t.ProxyURL),
		ConnectTimeout:     connectTimeout,
		Timeout:            timeout,
		KeepAlive:          !t.NoKeepAlive,
		Auth:               materializeAuth(t.Auth),
		ClientCertFile:     resolveUppercaseEnv(t.ClientCertFile),
		ClientKeyFile:      resolveUppercaseEnv(t.ClientKeyFile),
	}, nil
}

func materializeAuth(a *AuthConfig) plan.Auth {
	if a == nil {
		return plan.Auth{}
	}
	return plan.Auth{
		Kind:     plan.AuthKind(a.Kind),
		Token:    resolveUppercaseEnv(a.Token),
		Username: resolveUppercaseEnv(a.Username),
		Password: resolveUppercaseEnv(a.Password),
	}
}

func materializeLoad(l LoadConfig) (plan.Load, error) {
	duration, err := parseDuration(l.Duration)
	if err != nil {
		return plan.Load{}, fmt.Errorf("load.duration: %w", err)
	}
	warmup, err := parseDuration(l.Warmup)
	if err != nil {
		return plan.Load{}, fmt.Errorf("load.warmup: %w", err)
	}
	thinkTime, err := parseDuration(l.ThinkTime)
	if err != nil {
		return plan.Load{}, fmt.Errorf("load.thinkTime: %w", err)
	}
	rampUp, err := parseDuration(l.RampUp)
	if err != nil {
		return plan.Load{}, fmt.Errorf("load.rampUp: %w", err)
	}

	stages := make([]plan.Stage, 0, len(l.Stages))
	for i, s := range l.Stages {
		d, err := parseDuration(s.Duration)
		if err != nil {
			return plan.Load{}, fmt.Errorf("load.stages[%d].duration: %w", i, err)
		}
		stages = append(stages, plan.Stage{Duration: d, Target: s.Target})
	}

	return plan.Load{
		Kind:           plan.LoadKind(l.Kind),
		VUs:            l.Concurrency,
		Duration:       duration,
		MaxRequests:    l.MaxRequests,
		Rate:           l.Rate,
		RampUp:         rampUp,
		Warmup:         warmup,
		ThinkTime:      thinkTime,
		RPS:            l.RPS,
		MaxVUs:         l.MaxVUs,
		Stages:         stages,
		StagesAreRates: l.StagesAreRates,
	}, nil
}

func materializeThreshold(metric, expr string) (plan.Threshold, error) {
	m, op, boundStr, err := splitThresholdExpr(expr)
	if err != nil {
		return plan.Threshold{}, fmt.Errorf("thresholds.%s: %w", metric, err)
	}
	bound, err := parseThresholdBound(boundStr)
	if err != nil {
		return plan.Threshold{}, fmt.Errorf("thresholds.%s: %w", metric, err)
	}
	if m == "" {
		m = metric
	}
	return plan.Threshold{Metric: m, Op: plan.ThresholdOp(op), Bound: bound, Raw: expr}, nil
}

// parseThresholdBound accepts either a plain number or a duration
// string, normalizing durations to milliseconds to match plan.Threshold.Bound's
// documented unit for latency metrics.
func parseThresholdBound(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return float64(d) / float64(time.Millisecond), nil
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return 0, fmt.Errorf("invalid threshold bound %q", s)
	}
	return f, nil
}

// resolveSeed honors KAIOKEN_SEED when the document doesn't pin one,
// falling back to a time-based seed, so a run with no seed configured
// anywhere is nondeterministic.
func resolveSeed(configured int64) int64 {
	if configured != 0 {
		return configured
	}
	if env := os.Getenv("KAIOKEN_SEED"); env != "" {
		var seed int64
		if _, err := fmt.Sscanf(env, "%d", &seed); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}
