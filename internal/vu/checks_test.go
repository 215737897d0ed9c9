package vu

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wesleyorama2/kaioken/internal/plan"
)

func resp(code int) *http.Response { return &http.Response{StatusCode: code} }

func TestEvalExpressionStatus(t *testing.T) {
	assert.True(t, evalExpression("status == 200", resp(200), nil))
	assert.False(t, evalExpression("status == 200", resp(404), nil))
	assert.True(t, evalExpression("status >= 200 and status < 300", resp(204), nil))
	assert.True(t, evalExpression("status in [200, 201, 204]", resp(201), nil))
	assert.False(t, evalExpression("status in [200, 201, 204]", resp(500), nil))
}

func TestEvalExpressionBody(t *testing.T) {
	body := []byte(`{"status":"ok"}`)
	assert.True(t, evalExpression(`body contains "ok"`, resp(200), body))
	assert.False(t, evalExpression(`body contains "missing"`, resp(200), body))
	assert.True(t, evalExpression(`body matches "\"status\":\s*\"ok\""`, resp(200), body))
}

func TestEvalExpressionNot(t *testing.T) {
	assert.True(t, evalExpression("not status == 500", resp(200), nil))
	assert.False(t, evalExpression("not status == 200", resp(200), nil))
}

func TestEvalExpressionOrPrecedence(t *testing.T) {
	assert.True(t, evalExpression("status == 500 or status == 200", resp(200), nil))
}

func TestCheckSetEvaluate(t *testing.T) {
	checks := []plan.Check{
		{Name: "is-ok", Expression: "status == 200"},
		{Name: "has-body", Expression: `body contains "ok"`},
	}
	cs := NewCheckSet(checks)
	results := cs.Evaluate(plan.Scenario{}, resp(200), []byte("ok"))
	assert.True(t, results["is-ok"])
	assert.True(t, results["has-body"])
}

func TestCheckSetEvaluateEmpty(t *testing.T) {
	cs := NewCheckSet(nil)
	assert.Nil(t, cs.Evaluate(plan.Scenario{}, resp(200), nil))
}
