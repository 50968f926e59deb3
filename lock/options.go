package lock

// Config holds the lock attributes of a Handle.
type Config struct {
	Scope Scope
	Mode  Mode
}

// Option configures a Handle.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a handle config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithScope sets the lock scope. Defaults to SessionScope.
func WithScope(scope Scope) Option {
	return OptionFunc(func(c *Config) {
		c.Scope = scope
	})
}

// WithMode sets the lock mode. Defaults to Exclusive.
func WithMode(mode Mode) Option {
	return OptionFunc(func(c *Config) {
		c.Mode = mode
	})
}

// WithShared is shorthand for WithMode(Shared).
func WithShared() Option {
	return WithMode(Shared)
}
