package pipeline

import (
	"net/http"

	"github.com/clipforge/clipforge/internal/ffmpeg"
)

var Fetch = fetch

// WithRunner overrides the ffmpeg runner.
func WithRunner(r *ffmpeg.Runner) Options {
	return func(o *options) {
		o.runner = r
	}
}

// WithHTTPClient overrides the HTTP client used to download source videos.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.client = c
	}
}
