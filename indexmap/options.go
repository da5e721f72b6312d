package indexmap

const (
	// DefaultInitialCapacity is the default number of buckets.
	DefaultInitialCapacity = 128
	// DefaultLoadFactor is the default fill ratio that triggers growth.
	DefaultLoadFactor = 0.8
)

type options struct {
	initialCapacity int
	loadFactor      float64
}

// Option configures a Map.
type Option func(*options)

// WithInitialCapacity sets the initial number of buckets, rounded up to a power of two.
func WithInitialCapacity(n int) Option {
	return func(o *options) {
		o.initialCapacity = n
	}
}

// WithLoadFactor sets the fill ratio in (0, 1] at which the table doubles.
func WithLoadFactor(f float64) Option {
	return func(o *options) {
		o.loadFactor = f
	}
}
