package fs

// Options configures a freshly created image, mirroring the teacher's
// FilesystemSpec: a small struct of knobs set through functional options
// rather than a constructor with a long positional parameter list.
type Options struct {
	// ImageSize is the backing image's size in bytes. Zero means "caller's
	// default" — ssfs.CreateWithOptions falls back to image.DefaultSize.
	ImageSize int64
}

// Option mutates an Options value, in the functional-options style the
// teacher's CreateFilesystemSpecial callers use for FilesystemSpec.
type Option func(*Options)

// WithImageSize sets the backing image's size in bytes.
func WithImageSize(size int64) Option {
	return func(o *Options) { o.ImageSize = size }
}

// NewOptions applies opts over a zero-valued Options and returns the result.
//
// InodeCount and BlockCount are deliberately not configurable here: both are
// load-bearing constants baked into the superblock's fixed sector-offset
// formulas (superblock.Size, InodeStart, BlockStart) per the design's data
// model. Accepting a WithCounts option would mean recomputing those offsets
// per instance instead of treating them as compile-time constants, which the
// design's own comments rule out ("must not be changed without recomputing
// SUPER_BLOCK_SIZE").
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
