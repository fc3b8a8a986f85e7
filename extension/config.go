package extension

// Config holds the access extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.access" or "access" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableCache turns off read-side caching in the engine.
	DisableCache bool `json:"disable_cache" mapstructure:"disable_cache" yaml:"disable_cache"`

	// MaxDependDepth controls the maximum depth for relation dependency
	// resolution (default: 10).
	MaxDependDepth int `json:"max_depend_depth" mapstructure:"max_depend_depth" yaml:"max_depend_depth"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxDependDepth: 10,
	}
}
