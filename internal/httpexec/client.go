// Package httpexec is the default RequestExecutor: a net/http client
// instrumented with httptrace.ClientTrace for per-phase timing, classifying
// transport errors into the stable ErrorKind taxonomy the metrics pipeline
// reports on.
package httpexec

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/wesleyorama2/kaioken/internal/metrics"
)

// Client is the default vu.RequestExecutor implementation.
type Client struct {
	httpClient *http.Client
	authHeader string
	authValue  string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the client's overall request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithInsecureSkipVerify disables TLS certificate verification, for
// testing against self-signed endpoints.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Client) {
		transport := c.transport()
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.InsecureSkipVerify = skip
	}
}

// WithKeepAlive toggles connection reuse.
func WithKeepAlive(enabled bool) Option {
	return func(c *Client) { c.transport().DisableKeepAlives = !enabled }
}

// WithProxy routes requests through the given proxy URL.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		if proxyURL == "" {
			return
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return
		}
		c.transport().Proxy = http.ProxyURL(u)
	}
}

// WithBearerAuth sets a default "Authorization: Bearer <token>" header
// applied to every request that doesn't already carry its own
// Authorization header (a scenario header always wins).
func WithBearerAuth(token string) Option {
	return func(c *Client) {
		if token == "" {
			return
		}
		c.authHeader = "Authorization"
		c.authValue = "Bearer " + token
	}
}

// WithBasicAuth sets a default HTTP Basic Authorization header applied to
// every request that doesn't already carry its own Authorization header.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		if username == "" {
			return
		}
		c.authHeader = "Authorization"
		c.authValue = "Basic " + basicAuthValue(username, password)
	}
}

func basicAuthValue(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// WithClientCert configures a TLS client certificate (mTLS) for every
// outgoing connection.
func WithClientCert(certFile, keyFile string) Option {
	return func(c *Client) {
		if certFile == "" || keyFile == "" {
			return
		}
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return
		}
		transport := c.transport()
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.Certificates = append(transport.TLSClientConfig.Certificates, cert)
	}
}

// WithFollowRedirects controls whether the client follows 3xx responses.
func WithFollowRedirects(follow bool) Option {
	return func(c *Client) {
		if follow {
			c.httpClient.CheckRedirect = nil
			return
		}
		c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
}

func (c *Client) transport() *http.Transport {
	t, ok := c.httpClient.Transport.(*http.Transport)
	if !ok {
		t = http.DefaultTransport.(*http.Transport).Clone()
		c.httpClient.Transport = t
	}
	return t
}

// New builds a Client with sane defaults, applying any Options.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timing holds the httptrace-derived phase breakdown for one request.
type Timing struct {
	DNSLookupTime        time.Duration
	TCPConnectTime       time.Duration
	TLSHandshakeTime     time.Duration
	TimeToFirstByte      time.Duration
	ContentTransferTime  time.Duration
	TotalTime            time.Duration
}

// Execute issues one HTTP request and returns the parsed response along
// with its body bytes (read eagerly so extraction/checks can run on it
// without racing the caller's own use of the response).
func (c *Client) Execute(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	start := time.Now()
	lastPhaseEnd := start

	var dnsStart, connectStart, tlsStart time.Time
	var dnsDone, connectDone bool
	timing := &Timing{}

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone: func(httptrace.DNSDoneInfo) {
			end := time.Now()
			timing.DNSLookupTime = end.Sub(dnsStart)
			dnsDone = true
			lastPhaseEnd = end
		},
		ConnectStart: func(string, string) {
			if dnsDone {
				connectStart = time.Now()
			}
		},
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				end := time.Now()
				timing.TCPConnectTime = end.Sub(connectStart)
				connectDone = true
				lastPhaseEnd = end
			}
		},
		TLSHandshakeStart: func() {
			if connectDone {
				tlsStart = time.Now()
			}
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				end := time.Now()
				timing.TLSHandshakeTime = end.Sub(tlsStart)
				lastPhaseEnd = end
			}
		},
		GotFirstResponseByte: func() {
			now := time.Now()
			timing.TimeToFirstByte = now.Sub(lastPhaseEnd)
		},
	}

	req = req.WithContext(httptrace.WithClientTrace(ctx, trace))
	if c.authHeader != "" && req.Header.Get(c.authHeader) == "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	transferStart := time.Now()
	body, err := io.ReadAll(resp.Body)
	timing.ContentTransferTime = time.Since(transferStart)
	timing.TotalTime = time.Since(start)
	if err != nil {
		return resp, nil, err
	}

	return resp, body, nil
}

// Classify maps a transport error into the stable taxonomy the metrics
// pipeline tallies. Order matters: a timeout is also a net.Error, and a
// canceled context surfaces as context.Canceled wrapped by net/http, so the
// more specific checks run first.
func (c *Client) Classify(err error) metrics.ErrorKind {
	if err == nil {
		return metrics.ErrOther
	}
	if errors.Is(err, context.Canceled) {
		return metrics.ErrCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.ErrTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return metrics.ErrTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return metrics.ErrDNS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return metrics.ErrConnect
		}
		return metrics.ErrReset
	}

	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return metrics.ErrTLS
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return metrics.ErrProtocol
	}

	return metrics.ErrOther
}
