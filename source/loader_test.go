package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/htmltable2csv/config"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	return cfg
}

func newMockedLoader(t *testing.T, cfg *config.Config) (*Loader, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	l := NewLoader(cfg, NewMetrics(prometheus.NewRegistry()))
	l.collector.WithTransport(transport)
	return l, transport
}

func TestLoaderBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond

	l := NewLoader(cfg, nil)

	if got := l.backoff(1); got != 200*time.Millisecond {
		t.Fatalf("first backoff = %v, want 200ms", got)
	}
	if got := l.backoff(4); got > cfg.RetryBackoffMax {
		t.Fatalf("delay %v exceeds max %v", got, cfg.RetryBackoffMax)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "unauthorized", err: nil, statusCode: http.StatusUnauthorized, expected: "forbidden"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: errors.New("Not Found"), statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "bad gateway", err: nil, statusCode: http.StatusBadGateway, expected: "unavailable"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestKindRetryable(t *testing.T) {
	tests := map[Kind]bool{
		KindTimeout:     true,
		KindConnection:  true,
		KindRateLimited: true,
		KindUnavailable: true,
		KindForbidden:   false,
		KindNotFound:    false,
	}
	for kind, want := range tests {
		if got := kind.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", kind, got, want)
		}
	}
}

func TestLoadErrorWrapsCause(t *testing.T) {
	err := classifyError(context.DeadlineExceeded, 0)

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error type = %T, want *LoadError", err)
	}
	if loadErr.Kind != KindTimeout {
		t.Fatalf("kind = %q, want timeout", loadErr.Kind)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error should unwrap to context.DeadlineExceeded")
	}
	if got := err.Error(); got != "timeout: context deadline exceeded" {
		t.Fatalf("message = %q", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schools.html")
	if err := os.WriteFile(path, []byte("<table></table>"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	l := NewLoader(testConfig(), NewMetrics(prometheus.NewRegistry()))
	doc, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(doc.Body) != "<table></table>" {
		t.Fatalf("body = %q", doc.Body)
	}
	if doc.Location != path {
		t.Fatalf("location = %q, want %q", doc.Location, path)
	}
	if got := testutil.ToFloat64(l.Metrics.LoadsTotal.WithLabelValues("file")); got != 1 {
		t.Fatalf("file loads = %v, want 1", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	l := NewLoader(testConfig(), nil)
	_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "missing.html"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if got := ErrorTypeLabel(err); got != "not_found" {
		t.Fatalf("label = %q, want not_found", got)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error should unwrap to os.ErrNotExist: %v", err)
	}
}

func TestLoadCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(testConfig(), nil)
	if _, err := l.Load(ctx, "kansas_schools_raw.html"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoadURL(t *testing.T) {
	const url = "http://example.test/schools.html"
	l, transport := newMockedLoader(t, testConfig())
	transport.RegisterResponder("GET", url, htmlResponder(http.StatusOK, "<table><tr><td>A</td></tr></table>"))

	doc, err := l.Load(context.Background(), url)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(doc.Body) != "<table><tr><td>A</td></tr></table>" {
		t.Fatalf("body = %q", doc.Body)
	}
	if doc.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("content type = %q", doc.ContentType)
	}
	if got := testutil.ToFloat64(l.Metrics.FetchAttempts.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok attempts = %v, want 1", got)
	}
}

func TestLoadURLLargeBody(t *testing.T) {
	const url = "http://example.test/large.html"
	row := "<tr><td>USD 259</td><td>Wichita</td></tr>\n"
	body := "<table>" + strings.Repeat(row, (11<<20)/len(row)+1) + "</table>"

	l, transport := newMockedLoader(t, testConfig())
	transport.RegisterResponder("GET", url, htmlResponder(http.StatusOK, body))

	doc, err := l.Load(context.Background(), url)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc.Body) != len(body) {
		t.Fatalf("body length = %d, want %d", len(doc.Body), len(body))
	}
	if !strings.HasSuffix(string(doc.Body), "</table>") {
		t.Fatalf("body was cut short")
	}
}

func TestLoadURLStatusClassification(t *testing.T) {
	tests := []struct {
		status       int
		expected     string
		wantAttempts int
	}{
		{status: http.StatusNotFound, expected: "not_found", wantAttempts: 1},
		{status: http.StatusForbidden, expected: "forbidden", wantAttempts: 1},
		{status: http.StatusTooManyRequests, expected: "rate_limited", wantAttempts: 3},
		{status: http.StatusServiceUnavailable, expected: "unavailable", wantAttempts: 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			const url = "http://example.test/report.html"
			l, transport := newMockedLoader(t, testConfig())
			transport.RegisterResponder("GET", url, httpmock.NewStringResponder(tt.status, ""))

			_, err := l.Load(context.Background(), url)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := ErrorTypeLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err=%v)", got, tt.expected, err)
			}
			if got := transport.GetTotalCallCount(); got != tt.wantAttempts {
				t.Fatalf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestLoadURLRecoversAfterRetry(t *testing.T) {
	const url = "http://example.test/flaky.html"
	l, transport := newMockedLoader(t, testConfig())

	calls := 0
	transport.RegisterResponder("GET", url, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(http.StatusBadGateway, ""), nil
		}
		return htmlResponder(http.StatusOK, "<table><tr><td>ok</td></tr></table>")(req)
	})

	doc, err := l.Load(context.Background(), url)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(doc.Body) == "" {
		t.Fatalf("expected body after retry")
	}
	if got := testutil.ToFloat64(l.Metrics.RetriesTotal); got != 1 {
		t.Fatalf("retries = %v, want 1", got)
	}
}

func TestTranscodedContentType(t *testing.T) {
	tests := map[string]string{
		"text/html; charset=ISO-8859-1": "text/html; charset=utf-8",
		"text/html; charset=utf-8":      "text/html; charset=utf-8",
		"text/html":                     "text/html",
		"":                              "",
	}
	for in, want := range tests {
		if got := transcodedContentType(in); got != want {
			t.Errorf("transcodedContentType(%q) = %q, want %q", in, got, want)
		}
	}
}

func htmlResponder(status int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		resp.Request = req
		return resp, nil
	}
}
