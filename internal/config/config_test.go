package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/kaioken/internal/plan"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const closedDoc = `
name: checkout flow
target:
  baseUrl: "https://api.example.com"
  timeout: 10s
load:
  kind: closed
  concurrency: 20
  duration: 30s
scenarios:
  - name: browse
    weight: 7
    request:
      method: GET
      url: "/products"
  - name: checkout
    weight: 3
    dependsOn: [browse]
    request:
      method: POST
      url: "/cart/checkout"
thresholds:
  p95: "p95 < 500ms"
  error_rate: "error_rate < 0.05"
`

func TestLoadClosedLoopDocument(t *testing.T) {
	path := writeDoc(t, closedDoc)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "checkout flow", p.Name)
	assert.Equal(t, plan.LoadClosed, p.Load.Kind)
	assert.Equal(t, 20, p.Load.VUs)
	assert.Equal(t, "https://api.example.com", p.Target.BaseURL)
	require.Len(t, p.Scenarios, 2)
	assert.Equal(t, "browse", p.Scenarios[0].Name)
	assert.Equal(t, []string{"browse"}, p.Scenarios[1].DependsOn)
	require.Len(t, p.Thresholds, 2)
}

const openDoc = `
name: arrival rate smoke test
target:
  baseUrl: "https://api.example.com"
load:
  kind: open
  rps: 100
  maxVUs: 200
  duration: 1m
scenarios:
  - name: default
    weight: 1
    request:
      method: GET
      url: "/ping"
`

func TestLoadDefaultsCountNon2xxAsErrorToTrue(t *testing.T) {
	path := writeDoc(t, closedDoc)

	p, err := Load(path)
	require.NoError(t, err)
	assert.True(t, p.CountNon2xxAsError)
}

func TestLoadHonorsExplicitCountNon2xxAsErrorFalse(t *testing.T) {
	path := writeDoc(t, closedDoc+"\ncountNon2xxAsError: false\n")

	p, err := Load(path)
	require.NoError(t, err)
	assert.False(t, p.CountNon2xxAsError)
}

func TestLoadOpenLoopDocumentEnablesLatencyCorrection(t *testing.T) {
	path := writeDoc(t, openDoc)

	p, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, plan.LoadOpen, p.Load.Kind)
	assert.Equal(t, 100.0, p.Load.RPS)
	assert.Equal(t, 200, p.Load.MaxVUs)
	assert.True(t, p.LatencyCorrection)
}

func TestLoadMissingRequiredFieldFailsSchema(t *testing.T) {
	path := writeDoc(t, `
name: broken
load:
  kind: closed
  concurrency: 1
scenarios:
  - name: default
    weight: 1
    request:
      method: GET
      url: "/ping"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadClosedLoopRequiresConcurrency(t *testing.T) {
	path := writeDoc(t, `
name: broken
target:
  baseUrl: "https://api.example.com"
load:
  kind: closed
scenarios:
  - name: default
    weight: 1
    request:
      method: GET
      url: "/ping"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDuplicateScenarioNamesRejected(t *testing.T) {
	path := writeDoc(t, `
name: broken
target:
  baseUrl: "https://api.example.com"
load:
  kind: closed
  concurrency: 5
scenarios:
  - name: default
    weight: 1
    request: {method: GET, url: "/a"}
  - name: default
    weight: 1
    request: {method: GET, url: "/b"}
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadUnknownDependsOnRejected(t *testing.T) {
	path := writeDoc(t, `
name: broken
target:
  baseUrl: "https://api.example.com"
load:
  kind: closed
  concurrency: 5
scenarios:
  - name: checkout
    weight: 1
    dependsOn: [login]
    request: {method: GET, url: "/a"}
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidCheckRegexRejected(t *testing.T) {
	path := writeDoc(t, `
name: broken
target:
  baseUrl: "https://api.example.com"
load:
  kind: closed
  concurrency: 5
scenarios:
  - name: default
    weight: 1
    request: {method: GET, url: "/a"}
checks:
  - name: session-set
    expression: 'body matches "sess(ion"'
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadValidCheckRegexAccepted(t *testing.T) {
	path := writeDoc(t, `
name: ok
target:
  baseUrl: "https://api.example.com"
load:
  kind: closed
  concurrency: 5
scenarios:
  - name: default
    weight: 1
    request: {method: GET, url: "/a"}
checks:
  - name: session-set
    expression: 'body matches "session=\w+"'
`)

	_, err := Load(path)
	require.NoError(t, err)
}

func TestLoadTargetBearerAuth(t *testing.T) {
	path := writeDoc(t, `
name: authed
target:
  baseUrl: "https://api.example.com"
  auth:
    kind: bearer
    token: s3cr3t
load:
  kind: closed
  concurrency: 5
scenarios:
  - name: default
    weight: 1
    request: {method: GET, url: "/a"}
`)

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, plan.AuthBearer, p.Target.Auth.Kind)
	assert.Equal(t, "s3cr3t", p.Target.Auth.Token)
}

func TestLoadTargetAuthMissingTokenRejected(t *testing.T) {
	path := writeDoc(t, `
name: broken
target:
  baseUrl: "https://api.example.com"
  auth:
    kind: bearer
load:
  kind: closed
  concurrency: 5
scenarios:
  - name: default
    weight: 1
    request: {method: GET, url: "/a"}
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadTargetClientCertRequiresBothFiles(t *testing.T) {
	path := writeDoc(t, `
name: broken
target:
  baseUrl: "https://api.example.com"
  clientCertFile: "/tmp/cert.pem"
load:
  kind: closed
  concurrency: 5
scenarios:
  - name: default
    weight: 1
    request: {method: GET, url: "/a"}
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadJSONDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "json plan",
		"target": {"baseUrl": "https://api.example.com"},
		"load": {"kind": "closed", "concurrency": 5, "duration": "10s"},
		"scenarios": [{"name": "default", "weight": 1, "request": {"method": "GET", "url": "/ping"}}]
	}`), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json plan", p.Name)
}
