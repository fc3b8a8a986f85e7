package access

// Config holds configuration for the access engine.
type Config struct {
	// MaxDependDepth is the maximum depth for relation dependency
	// resolution. Defaults to 10.
	MaxDependDepth int `json:"max_depend_depth,omitempty"`

	// DisableCache turns off all read-side caching. Invalidation broadcasts
	// are still published so sibling processes with caching on stay
	// consistent.
	DisableCache bool `json:"disable_cache,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDependDepth: 10,
	}
}
