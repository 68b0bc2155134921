package notifier

import (
	"net/http"
	"time"
)

// WithHTTPClient overrides the HTTP client used to deliver callbacks.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithRetryTimeout overrides the total retry budget of NotifyReadyBackoff.
func WithRetryTimeout(d time.Duration) Options {
	return func(o *options) {
		o.retryTimeout = d
	}
}

// WithSleep overrides the sleep function used between retries.
func WithSleep(f func(time.Duration)) Options {
	return func(o *options) {
		o.sleep = f
	}
}
