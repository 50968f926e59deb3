package pgx

// Config holds the configuration for the pgx lock provider.
type Config struct {
	// AllDatabases makes is-locked and list-held-keys look at advisory locks
	// of every database in the cluster instead of the current one.
	AllDatabases bool
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

// WithAllDatabases returns an option that widens lock introspection to
// every database of the cluster. Advisory locks are per database, so keys of
// other databases never conflict with the current one.
func WithAllDatabases() Option {
	return OptionFunc(func(c *Config) {
		c.AllDatabases = true
	})
}
