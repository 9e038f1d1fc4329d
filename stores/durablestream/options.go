package durablestream

import (
	"net/http"
	"time"
)

// Logger receives request retries and records the store had to skip.
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Warnw(msg string, keysAndValues ...any)
	Debugw(msg string, keysAndValues ...any)
}

// Option configures a Store.
type Option func(*config)

type config struct {
	httpClient     *http.Client
	requestTimeout time.Duration
	retryAttempts  int
	retryBackoff   time.Duration
	logger         Logger
}

// Publishers append every 100ms, so a request stuck for longer than a few
// seconds is better failed than waited on.
func defaultConfig() *config {
	return &config{
		httpClient:     http.DefaultClient,
		requestTimeout: 5 * time.Second,
		retryAttempts:  3,
		retryBackoff:   50 * time.Millisecond,
	}
}

// WithHTTPClient sets the client used to reach the server.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRequestTimeout bounds each request, retries included.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithRetry sets how often a failed request is retried and the first
// backoff, which doubles on each further attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *config) {
		if attempts >= 0 {
			c.retryAttempts = attempts
		}
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithLogger sets a logger for retries and skipped records.
func WithLogger(logger Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
