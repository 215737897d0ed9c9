package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wesleyorama2/kaioken/pkg/jsonschema"
)

// ValidationError is one field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors collects every failure found in one pass so a user
// fixes a document in one edit rather than one error at a time.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func (e *ValidationErrors) Add(field, format string, args ...any) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationErrors) HasErrors() bool { return len(e.Errors) > 0 }

// documentSchema checks shape only (required keys, types, enums);
// cross-field rules (load.kind-specific requirements, scenario name
// uniqueness, DependsOn references) are checked in Validate below.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "target", "load", "scenarios"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "target": {
      "type": "object",
      "required": ["baseUrl"],
      "properties": {
        "baseUrl": {"type": "string", "minLength": 1}
      }
    },
    "load": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"enum": ["closed", "open", "stages"]}
      }
    },
    "scenarios": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "request"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "weight": {"type": "number", "minimum": 0},
          "request": {
            "type": "object",
            "required": ["method", "url"],
            "properties": {
              "method": {"type": "string", "minLength": 1},
              "url": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    }
  }
}`

func validateSchema(raw []byte) error {
	ok, schemaErrs := jsonschema.ValidateWithErrors(string(raw), documentSchema)
	if ok {
		return nil
	}
	errs := &ValidationErrors{}
	for _, e := range schemaErrs {
		errs.Add("", "%s", e.Error())
	}
	return errs
}

// Validate checks cross-field rules the JSON Schema can't express:
// load-kind-specific required fields, unique scenario names, DependsOn
// referencing real scenarios, and duration strings parsing cleanly.
func (d *Document) Validate() error {
	errs := &ValidationErrors{}

	switch d.Load.Kind {
	case "closed":
		if d.Load.Concurrency <= 0 {
			errs.Add("load.concurrency", "concurrency must be > 0 for a closed-loop load")
		}
	case "open":
		if d.Load.RPS <= 0 {
			errs.Add("load.rps", "rps must be > 0 for an open-loop load")
		}
		if d.Load.MaxVUs <= 0 {
			errs.Add("load.maxVUs", "maxVUs must be > 0 for an open-loop load")
		}
	case "stages":
		if len(d.Load.Stages) == 0 {
			errs.Add("load.stages", "at least one stage is required")
		}
	default:
		errs.Add("load.kind", "unknown load kind %q", d.Load.Kind)
	}

	for _, field := range []struct{ name, value string }{
		{"load.duration", d.Load.Duration},
		{"load.warmup", d.Load.Warmup},
		{"load.thinkTime", d.Load.ThinkTime},
		{"load.rampUp", d.Load.RampUp},
	} {
		if _, err := parseDuration(field.value); err != nil {
			errs.Add(field.name, "invalid duration %q: %v", field.value, err)
		}
	}
	for i, s := range d.Load.Stages {
		if _, err := parseDuration(s.Duration); err != nil {
			errs.Add(fmt.Sprintf("load.stages[%d].duration", i), "invalid duration %q: %v", s.Duration, err)
		}
	}

	seen := make(map[string]bool, len(d.Scenarios))
	for _, sc := range d.Scenarios {
		if seen[sc.Name] {
			errs.Add("scenarios", "duplicate scenario name %q", sc.Name)
		}
		seen[sc.Name] = true
		if sc.Weight < 0 {
			errs.Add(fmt.Sprintf("scenarios.%s.weight", sc.Name), "weight must be >= 0")
		}
	}
	for _, sc := range d.Scenarios {
		for _, dep := range sc.DependsOn {
			if !seen[dep] {
				errs.Add(fmt.Sprintf("scenarios.%s.dependsOn", sc.Name), "depends on unknown scenario %q", dep)
			}
		}
	}

	for metric, expr := range d.Thresholds {
		if _, _, _, err := splitThresholdExpr(expr); err != nil {
			errs.Add("thresholds."+metric, "%v", err)
		}
	}

	for _, c := range d.Checks {
		for _, pattern := range bodyMatchesPatterns(c.Expression) {
			if _, err := regexp.Compile(pattern); err != nil {
				errs.Add("checks."+c.Name, "invalid regex %q: %v", pattern, err)
			}
		}
	}

	if a := d.Target.Auth; a != nil {
		switch a.Kind {
		case "bearer":
			if a.Token == "" {
				errs.Add("target.auth.token", "bearer auth requires a token")
			}
		case "basic":
			if a.Username == "" {
				errs.Add("target.auth.username", "basic auth requires a username")
			}
		default:
			errs.Add("target.auth.kind", "unknown auth kind %q, want \"bearer\" or \"basic\"", a.Kind)
		}
	}
	if (d.Target.ClientCertFile == "") != (d.Target.ClientKeyFile == "") {
		errs.Add("target.clientCertFile", "clientCertFile and clientKeyFile must be set together")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// bodyMatchesAtom finds every `body matches "<pattern>"` occurrence in a
// check expression; it mirrors the runtime check parser's tokenization
// just enough to pull out the regex literals without depending on the vu
// package, which evaluates these expressions at request time.
var bodyMatchesAtom = regexp.MustCompile(`(?i)matches\s+"((?:[^"\\]|\\.)*)"`)

// bodyMatchesPatterns returns every regex literal a check expression
// passes to a "matches" atom, so Validate can reject an uncompilable
// pattern at plan load instead of letting it silently evaluate to false
// on every request.
func bodyMatchesPatterns(expr string) []string {
	matches := bodyMatchesAtom.FindAllStringSubmatch(expr, -1)
	patterns := make([]string, 0, len(matches))
	for _, m := range matches {
		patterns = append(patterns, m[1])
	}
	return patterns
}

// splitThresholdExpr splits a threshold expression into metric, operator
// and bound. The metric part is empty for an expression that starts with
// its operator ("< 50"); materializeThreshold then takes the metric from
// the threshold's key. Validate and materializeThreshold both use it.
func splitThresholdExpr(expr string) (metric, op, bound string, err error) {
	expr = strings.TrimSpace(expr)
	for _, candidate := range []string{"<=", ">=", "==", "!=", "<", ">"} {
		if idx := strings.Index(expr, candidate); idx >= 0 {
			return strings.TrimSpace(expr[:idx]), candidate, strings.TrimSpace(expr[idx+len(candidate):]), nil
		}
	}
	return "", "", "", fmt.Errorf("expression %q has no recognizable operator", expr)
}
