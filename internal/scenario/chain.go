package scenario

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/wesleyorama2/kaioken/internal/plan"
)

// ChainContext is a single VU's scratch space: variables extracted from one
// request in a scenario chain that later requests in the same chain (or a
// dependent scenario) can reference via ${name}.
type ChainContext struct {
	values map[string]string
}

// NewChainContext returns an empty chain context.
func NewChainContext() *ChainContext {
	return &ChainContext{values: make(map[string]string)}
}

// Set stores one extracted value.
func (c *ChainContext) Set(name, value string) { c.values[name] = value }

// Snapshot returns a copy suitable for handing to a VariableResolver; a copy
// keeps the resolver from observing later mutations mid-substitution.
func (c *ChainContext) Snapshot() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Reset clears all stored values. VUs do not call it between iterations;
// extracted values persist for the VU's later iterations.
func (c *ChainContext) Reset() {
	for k := range c.values {
		delete(c.values, k)
	}
}

// Builtins returns the per-iteration built-in variables every request gets
// regardless of chain state: REQUEST_ID and TIMESTAMP_MS.
func Builtins(requestID string, now time.Time) map[string]string {
	return map[string]string{
		"REQUEST_ID":    requestID,
		"TIMESTAMP_MS":  strconv.FormatInt(now.UnixMilli(), 10),
	}
}

// regexCache caches compiled regex extraction patterns; these are fixed at
// plan-load time and reused across every iteration, so compiling once per
// scenario definition (not per request) keeps extraction cheap.
var regexCache = make(map[string]*regexp.Regexp)

// Extract runs one extraction rule against a response and returns the value
// it produced, or ok=false if the source had nothing to offer (missing
// header, no regex match, absent JSON path).
func Extract(e plan.Extraction, resp *http.Response, body []byte) (string, bool) {
	switch e.Source {
	case "header":
		if resp == nil {
			return "", false
		}
		v := resp.Header.Get(e.Path)
		return v, v != ""

	case "json":
		result := gjson.GetBytes(body, e.Path)
		if !result.Exists() {
			return "", false
		}
		return result.String(), true

	case "regex":
		re, ok := regexCache[e.Regex]
		if !ok {
			compiled, err := regexp.Compile(e.Regex)
			if err != nil {
				return "", false
			}
			re = compiled
			regexCache[e.Regex] = re
		}
		m := re.FindSubmatch(body)
		if len(m) <= e.Group {
			return "", false
		}
		return string(m[e.Group]), true

	case "body":
		return string(body), len(body) > 0

	default:
		return "", false
	}
}

// ApplyExtractions runs every extraction rule on a scenario and records
// whatever it finds into the chain context, returning the names it set (for
// diagnostics) and skipping silently over misses — a failed extraction
// leaves the variable unset rather than erroring the iteration, since a
// later request referencing it will simply see the raw ${name} token per
// the resolver's pass-through-on-miss rule.
func ApplyExtractions(extractions []plan.Extraction, resp *http.Response, body []byte, chain *ChainContext) []string {
	var set []string
	for _, e := range extractions {
		v, ok := Extract(e, resp, body)
		if !ok {
			continue
		}
		chain.Set(e.Name, v)
		set = append(set, e.Name)
	}
	return set
}

// RequestID formats the per-iteration identifier vuID×10⁹ + iteration as a
// decimal string; unique within a run while a VU stays under 10⁹ iterations.
func RequestID(vuID int, iteration int64) string {
	return fmt.Sprintf("%d", int64(vuID)*1_000_000_000+iteration)
}
