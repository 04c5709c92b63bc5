package pmmrstore

import "go.uber.org/zap"

// Options configures a Backend. Constructed via functional options,
// following the donor test fixtures' configuration style rather than an
// external config file format — the core has no business parsing
// environment variables or flags itself (that belongs to cmd/pmmrtool).
type Options struct {
	log       *zap.Logger
	useMmap   bool
	fileMode  uint32
}

// Option mutates an Options value.
type Option func(*Options)

// WithLogger sets the zap logger used for all of this backend's
// structured logging. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) { o.log = log }
}

// WithMemoryMap toggles whether reads are served from a memory-mapped
// view of each file (the default) or always re-read from the open file
// handle — useful on platforms/tests where mmap is undesirable.
func WithMemoryMap(enabled bool) Option {
	return func(o *Options) { o.useMmap = enabled }
}

// WithFileMode overrides the permission bits used when creating new
// on-disk files.
func WithFileMode(mode uint32) Option {
	return func(o *Options) { o.fileMode = mode }
}

func newOptions(opts ...Option) Options {
	o := Options{log: zap.NewNop(), useMmap: true, fileMode: 0o644}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
