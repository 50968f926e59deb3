package mysql

// Config holds the configuration for the MySQL lock provider.
type Config struct {
	// Prefix is prepended to the decimal key to form the user lock name.
	Prefix string
}

// Option configures a lock provider instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a lock config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithPrefix sets the lock name prefix. Locks of providers with different
// prefixes never conflict.
func WithPrefix(prefix string) Option {
	return OptionFunc(func(c *Config) {
		c.Prefix = prefix
	})
}
