// Package config parses a run document (YAML or JSON) into the engine's
// immutable plan.RunPlan, validating it against a JSON Schema before
// materialization.
package config

import "time"

// Document is the root of a run configuration file.
//
// Example YAML:
//
//	name: "checkout flow"
//	target:
//	  baseUrl: "https://${API_HOST}/api"
//	  timeout: 30s
//	load:
//	  kind: open
//	  rps: 200
//	  maxVUs: 500
//	  duration: 5m
//	scenarios:
//	  - name: browse
//	    weight: 7
//	    request:
//	      method: GET
//	      url: "/products"
//	  - name: checkout
//	    weight: 3
//	    dependsOn: [browse]
//	    request:
//	      method: POST
//	      url: "/cart/checkout"
type Document struct {
	Name               string            `json:"name" yaml:"name"`
	Target             TargetConfig      `json:"target" yaml:"target"`
	Load               LoadConfig        `json:"load" yaml:"load"`
	Scenarios          []ScenarioConfig  `json:"scenarios" yaml:"scenarios"`
	Checks             []CheckConfig     `json:"checks,omitempty" yaml:"checks,omitempty"`
	Thresholds         map[string]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	CookieJar          bool              `json:"cookieJar,omitempty" yaml:"cookieJar,omitempty"`
	NoLatencyCorrection bool             `json:"noLatencyCorrection,omitempty" yaml:"noLatencyCorrection,omitempty"`
	// CountNon2xxAsError is a pointer so an omitted field (nil) can be told
	// apart from an explicit `false`; the documented default is true.
	CountNon2xxAsError *bool             `json:"countNon2xxAsError,omitempty" yaml:"countNon2xxAsError,omitempty"`
	FailFast           bool              `json:"failFast,omitempty" yaml:"failFast,omitempty"`
	FailOnCheck        bool              `json:"failOnCheck,omitempty" yaml:"failOnCheck,omitempty"`
	Seed               int64             `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// TargetConfig describes the HTTP destination and transport options.
type TargetConfig struct {
	BaseURL            string            `json:"baseUrl" yaml:"baseUrl"`
	Method             string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers            map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body               string            `json:"body,omitempty" yaml:"body,omitempty"`
	InsecureSkipVerify bool              `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
	NoFollowRedirects  bool              `json:"noFollowRedirects,omitempty" yaml:"noFollowRedirects,omitempty"`
	ProxyURL           string            `json:"proxyUrl,omitempty" yaml:"proxyUrl,omitempty"`
	ConnectTimeout     string            `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty"`
	Timeout            string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	NoKeepAlive        bool              `json:"noKeepAlive,omitempty" yaml:"noKeepAlive,omitempty"`
	Auth               *AuthConfig       `json:"auth,omitempty" yaml:"auth,omitempty"`
	ClientCertFile     string            `json:"clientCertFile,omitempty" yaml:"clientCertFile,omitempty"`
	ClientKeyFile      string            `json:"clientKeyFile,omitempty" yaml:"clientKeyFile,omitempty"`
}

// AuthConfig is a target-wide default credential applied to every request
// that doesn't set its own Authorization header. Kind selects which of the
// other fields apply: "bearer" uses Token, "basic" uses Username/Password.
type AuthConfig struct {
	Kind     string `json:"kind" yaml:"kind"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// LoadConfig selects and configures one of the three load models. Kind
// discriminates which of the other fields apply.
type LoadConfig struct {
	Kind string `json:"kind" yaml:"kind"` // "closed", "open", "stages"

	// closed
	Concurrency int     `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	MaxRequests int64   `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty"`
	Rate        float64 `json:"rate,omitempty" yaml:"rate,omitempty"`
	RampUp      string  `json:"rampUp,omitempty" yaml:"rampUp,omitempty"`

	// open
	RPS    float64 `json:"rps,omitempty" yaml:"rps,omitempty"`
	MaxVUs int     `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// stages
	Stages       []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`
	StagesAreRates bool        `json:"stagesAreRates,omitempty" yaml:"stagesAreRates,omitempty"`

	// shared
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Warmup    string `json:"warmup,omitempty" yaml:"warmup,omitempty"`
	ThinkTime string `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`
}

// StageConfig is one leg of a piecewise-linear ramp.
type StageConfig struct {
	Duration string  `json:"duration" yaml:"duration"`
	Target   float64 `json:"target" yaml:"target"`
}

// ScenarioConfig is a named, weighted request template.
type ScenarioConfig struct {
	Name      string            `json:"name" yaml:"name"`
	Weight    float64           `json:"weight" yaml:"weight"`
	DependsOn []string          `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	Request   RequestConfig     `json:"request" yaml:"request"`
	Extract   []ExtractConfig   `json:"extract,omitempty" yaml:"extract,omitempty"`
	Tags      map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// RequestConfig is the uninterpolated request shape.
type RequestConfig struct {
	Method  string            `json:"method" yaml:"method"`
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string            `json:"body,omitempty" yaml:"body,omitempty"`
}

// ExtractConfig describes how to pull one variable out of a response.
type ExtractConfig struct {
	Name  string `json:"name" yaml:"name"`
	Source string `json:"source" yaml:"source"` // "json", "regex", "header", "body"
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty"`
	Group int    `json:"group,omitempty" yaml:"group,omitempty"`
}

// CheckConfig is a named boolean predicate evaluated against every outcome.
type CheckConfig struct {
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
}

// parseDuration parses a Go duration string, treating "" as zero rather
// than an error, matching how optional duration fields are used
// throughout the document.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
