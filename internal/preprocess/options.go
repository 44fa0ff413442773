package preprocess

import "video2notes/internal/media"

// Option customizes the adapters in this package.
type Option func(*options)

type options struct {
	tools *media.Tools
}

// WithTools replaces the media tools (and their runner).
func WithTools(tools media.Tools) Option {
	return func(o *options) { o.tools = &tools }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
