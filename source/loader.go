// Package source loads HTML documents from the filesystem or over HTTP.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/aluiziolira/htmltable2csv/config"
	"github.com/gocolly/colly/v2"
)

// Document is the raw content of an HTML source.
type Document struct {
	Location    string
	Body        []byte
	ContentType string
}

// Loader reads documents from paths or http(s) URLs. URL fetches go through
// a colly collector and are retried with exponential backoff.
type Loader struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics
}

// NewLoader builds a loader configured from cfg. metrics may be nil.
// Response bodies are read in full; a truncated page would yield a
// truncated table.
func NewLoader(cfg *config.Config, metrics *Metrics) *Loader {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(0),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Loader{
		cfg:       cfg,
		collector: collector,
		Metrics:   metrics,
	}
}

// Load returns the document at location.
func (l *Loader) Load(ctx context.Context, location string) (*Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if config.IsURL(location) {
		l.Metrics.IncLoad("http")
		return l.fetch(ctx, location)
	}

	l.Metrics.IncLoad("file")
	body, err := os.ReadFile(location)
	if err != nil {
		return nil, classifyFileError(err)
	}
	slog.Debug("read input file", slog.String("path", location), slog.Int("bytes", len(body)))
	return &Document{Location: location, Body: body}, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (*Document, error) {
	var lastErr error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.backoff(attempt)
			slog.Debug("retrying fetch",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			l.Metrics.IncRetries()
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
			case <-timer.C:
			}
		}

		doc, err := l.visit(url)
		if err == nil {
			l.Metrics.IncAttempt("ok")
			return doc, nil
		}

		category := ErrorTypeLabel(err)
		l.Metrics.IncAttempt(category)
		slog.Warn("fetch failed",
			slog.String("url", url),
			slog.String("category", category),
			slog.Any("error", err),
		)
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (l *Loader) visit(url string) (*Document, error) {
	c := l.collector.Clone()

	var (
		doc    *Document
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		contentType := ""
		if r.Headers != nil {
			contentType = transcodedContentType(r.Headers.Get("Content-Type"))
		}
		doc = &Document{
			Location:    url,
			Body:        r.Body,
			ContentType: contentType,
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	start := time.Now()
	err := c.Visit(url)
	l.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return nil, classifyError(err, status)
	}
	if doc == nil {
		return nil, fmt.Errorf("fetch %s: empty response", url)
	}
	return doc, nil
}

// transcodedContentType accounts for colly converting bodies with a declared
// charset to UTF-8 before handing them over.
func transcodedContentType(contentType string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return contentType
	}
	return mediaType + "; charset=utf-8"
}

func (l *Loader) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := l.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := l.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
