package httpexec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/kaioken/internal/metrics"
)

func TestExecuteReadsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(WithTimeout(2 * time.Second))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, body, err := c.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(body))
}

func TestExecuteHonorsTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(WithTimeout(10 * time.Millisecond))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, _, err = c.Execute(context.Background(), req)
	assert.Error(t, err)
}

func TestWithFollowRedirectsDisabled(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	c := New(WithTimeout(time.Second), WithFollowRedirects(false))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, _, err := c.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestClassifyCanceledAndTimeout(t *testing.T) {
	c := New()
	assert.Equal(t, metrics.ErrCanceled, c.Classify(context.Canceled))
	assert.Equal(t, metrics.ErrTimeout, c.Classify(context.DeadlineExceeded))
}

func TestClassifyConnectError(t *testing.T) {
	c := New(WithTimeout(50 * time.Millisecond))
	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:1", nil)
	require.NoError(t, err)

	_, _, err = c.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, metrics.ErrConnect, c.Classify(err))
}

func TestClassifyUnknownError(t *testing.T) {
	c := New()
	assert.Equal(t, metrics.ErrOther, c.Classify(errors.New("something unrelated")))
}

func TestWithBearerAuthSetsDefaultHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(WithTimeout(time.Second), WithBearerAuth("abc123"))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, _, err = c.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc123", gotAuth)
}

func TestWithBearerAuthDoesNotOverrideExistingHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(WithTimeout(time.Second), WithBearerAuth("abc123"))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer from-scenario")

	_, _, err = c.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer from-scenario", gotAuth)
}

func TestWithBasicAuthSetsDefaultHeader(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(WithTimeout(time.Second), WithBasicAuth("alice", "hunter2"))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, _, err = c.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, gotOK)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "hunter2", gotPass)
}
