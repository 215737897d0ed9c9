package vu

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/wesleyorama2/kaioken/internal/plan"
)

// CheckSet evaluates every plan.Check's condition expression against an
// outcome and reports pass/fail per check name, the same shape the
// aggregator tallies into a pass rate.
//
// Grammar: "not" binds tightest, then "and", then "or"; "and" and "or" are
// left-associative. Atoms:
//
//	status <op> <code>          status == 200, status >= 200
//	status in [<codes>]         status in [200, 201, 204]
//	body contains "<text>"
//	body matches "<regex>"
//	not <atom>
type CheckSet struct {
	checks []plan.Check
}

// NewCheckSet stores every check for reuse across iterations; each
// expression is parsed when Evaluate runs it.
func NewCheckSet(checks []plan.Check) *CheckSet {
	return &CheckSet{checks: checks}
}

// Evaluate runs every check against one response and returns a name→passed
// map for the aggregator.
func (c *CheckSet) Evaluate(sc plan.Scenario, resp *http.Response, body []byte) map[string]bool {
	if len(c.checks) == 0 {
		return nil
	}
	out := make(map[string]bool, len(c.checks))
	for _, chk := range c.checks {
		out[chk.Name] = evalExpression(chk.Expression, resp, body)
	}
	return out
}

var checkTokenizer = regexp.MustCompile(`\[[^\]]*\]|"(?:[^"\\]|\\.)*"|\S+`)

func tokenize(expr string) []string {
	return checkTokenizer.FindAllString(expr, -1)
}

// evalExpression parses and evaluates one check expression. A malformed
// expression evaluates to false rather than panicking — validation at plan
// load should already have rejected it, so by the time this runs it is
// assumed well-formed; this is just defense against a subtle parser gap.
func evalExpression(expr string, resp *http.Response, body []byte) bool {
	toks := tokenize(expr)
	p := &checkParser{toks: toks, resp: resp, body: body}
	result := p.parseOr()
	return result
}

type checkParser struct {
	toks []string
	pos  int
	resp *http.Response
	body []byte
}

func (p *checkParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *checkParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *checkParser) parseOr() bool {
	left := p.parseAnd()
	for strings.EqualFold(p.peek(), "or") {
		p.next()
		right := p.parseAnd()
		left = left || right
	}
	return left
}

func (p *checkParser) parseAnd() bool {
	left := p.parseAtom()
	for strings.EqualFold(p.peek(), "and") {
		p.next()
		right := p.parseAtom()
		left = left && right
	}
	return left
}

func (p *checkParser) parseAtom() bool {
	if strings.EqualFold(p.peek(), "not") {
		p.next()
		return !p.parseAtom()
	}

	subject := strings.ToLower(p.next())
	switch subject {
	case "status":
		return p.parseStatusAtom()
	case "body":
		return p.parseBodyAtom()
	default:
		return false
	}
}

func (p *checkParser) parseStatusAtom() bool {
	if p.resp == nil {
		return false
	}
	op := strings.ToLower(p.next())
	if op == "in" {
		list := p.next()
		list = strings.TrimPrefix(list, "[")
		list = strings.TrimSuffix(list, "]")
		for _, part := range strings.Split(list, ",") {
			code, err := strconv.Atoi(strings.TrimSpace(part))
			if err == nil && code == p.resp.StatusCode {
				return true
			}
		}
		return false
	}

	code, err := strconv.Atoi(p.next())
	if err != nil {
		return false
	}
	actual := p.resp.StatusCode
	switch op {
	case "==":
		return actual == code
	case "!=":
		return actual != code
	case "<":
		return actual < code
	case "<=":
		return actual <= code
	case ">":
		return actual > code
	case ">=":
		return actual >= code
	default:
		return false
	}
}

func (p *checkParser) parseBodyAtom() bool {
	op := strings.ToLower(p.next())
	arg := unquote(p.next())
	switch op {
	case "contains":
		return strings.Contains(string(p.body), arg)
	case "matches":
		re, err := regexp.Compile(arg)
		if err != nil {
			return false
		}
		return re.Match(p.body)
	default:
		return false
	}
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
