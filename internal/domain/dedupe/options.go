package dedupe

// Option applies a configuration option to the in-memory Deduper.
type Option func(*window)

// WithMaxSize bounds how many ids are remembered. Zero or negative is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *window) {
		d.maxSize = maxSize
	}
}
