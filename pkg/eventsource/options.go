package eventsource

import (
	"io"
	"log/slog"
	"net/http"
)

// Option configures a Client created with New.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to open the stream. The client
// must not carry a Timeout: it would cut the stream off mid-read.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTee copies every raw stream line to w as it is read.
func WithTee(w io.Writer) Option {
	return func(c *Client) {
		c.tee = w
	}
}
