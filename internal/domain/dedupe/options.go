package dedupe

// Option applies a configuration option to the source guard.
type Option func(*sourceGuard)

// WithMaxSize sets the maximum number of keys to remember.
// If maxSize > 0: bounded mode, oldest keys are evicted first.
// If maxSize <= 0: unbounded mode.
func WithMaxSize(maxSize int) Option {
	return func(g *sourceGuard) {
		g.maxSize = maxSize
	}
}
