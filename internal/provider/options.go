package provider

import "time"

type options struct {
	timeout time.Duration
}

// Option tweaks gateway client construction.
type Option func(*options)

// WithTimeout overrides the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func applyOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
