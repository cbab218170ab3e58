package converter

// WithIDGenerator overrides the artifact identifier generator.
func WithIDGenerator(f func() string) Options {
	return func(o *options) {
		o.newID = f
	}
}
