package service

import "time"

// WithMaxDegradedDuration overrides how long Run waits for remaining
// sub-services once the first one has finished.
func WithMaxDegradedDuration(d time.Duration) Option {
	return func(o *options) {
		o.maxDegradedDuration = d
	}
}
