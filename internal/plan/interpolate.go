package plan

import (
	"log"
	"os"
	"regexp"
	"strings"
)

// envToken matches ${VAR} and ${VAR:-default}.
var envToken = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// unresolvedLog tracks which uppercase tokens have already been logged as
// unresolved, so a noisy plan doesn't spam the same warning every iteration.
var unresolvedLog = map[string]bool{}

// ResolveEnvironment substitutes ${VAR} / ${VAR:-default} for every
// uppercase-named token in s using the process environment. Lowercase names
// are left untouched so they can be resolved at runtime from a ChainContext.
// Unknown uppercase tokens pass through unchanged (not blanked) and are
// logged once.
func ResolveEnvironment(s string) string {
	return envToken.ReplaceAllStringFunc(s, func(tok string) string {
		m := envToken.FindStringSubmatch(tok)
		name, hasDefault, def := m[1], m[2] != "", m[3]
		if !isUpper(name) {
			return tok
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		if !unresolvedLog[name] {
			unresolvedLog[name] = true
			log.Printf("unresolved environment variable ${%s} left unchanged", name)
		}
		return tok
	})
}

func isUpper(s string) bool {
	return s == strings.ToUpper(s)
}

// VariableResolver resolves ${name} tokens against a layered variable scope:
// per-iteration built-ins, then chain-context. A token matching neither is
// left unchanged rather than blanked.
type VariableResolver struct {
	Builtins map[string]string
	Chain    map[string]string
}

var runtimeToken = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Resolve substitutes every ${name} token in s. Built-ins take priority over
// chain-context values. A token with no match anywhere is left unchanged.
func (r *VariableResolver) Resolve(s string) string {
	return runtimeToken.ReplaceAllStringFunc(s, func(tok string) string {
		name := runtimeToken.FindStringSubmatch(tok)[1]
		if v, ok := r.Builtins[name]; ok {
			return v
		}
		if v, ok := r.Chain[name]; ok {
			return v
		}
		return tok
	})
}
