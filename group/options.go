package group

// ErrorMode defines how the Group handles errors from its functions
type ErrorMode int

const (
	// FailFast cancels the group on first error and returns it
	FailFast ErrorMode = iota
	// CollectAll collects all errors and returns them as an aggregate
	CollectAll
	// IgnoreErrors ignores all errors from functions
	IgnoreErrors
)

func (m ErrorMode) String() string {
	switch m {
	case FailFast:
		return "fail-fast"
	case CollectAll:
		return "collect-all"
	case IgnoreErrors:
		return "ignore"
	default:
		return "unknown"
	}
}

// Config holds configuration for a Group
type Config struct {
	errorMode ErrorMode
}

// Option configures a Group
type Option func(*Config)

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		errorMode: CollectAll,
	}
}

// BuildConfig applies opts over DefaultConfig
func BuildConfig(opts []Option) Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// WithErrorMode sets how errors are handled
func WithErrorMode(mode ErrorMode) Option {
	return func(c *Config) {
		c.errorMode = mode
	}
}
