// Package extension provides a Forge extension entry point for the access
// engine.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	access "github.com/shanliu/lsys-access"
	"github.com/shanliu/lsys-access/plugin"
	"github.com/shanliu/lsys-access/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "access"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Multi-tenant RBAC authorization engine with resource catalog and cached checks"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the access engine as a Forge extension.
type Extension struct {
	config     Config
	eng        *access.Engine
	logger     *slog.Logger
	engineOpts []access.Option
	plugins    []plugin.Plugin
}

// New creates an access Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying access engine.
func (e *Extension) Engine() *access.Engine { return e.eng }

// Register implements [forge.Extension]. It initializes the engine and
// registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*access.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("access: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]access.Option, 0, len(e.engineOpts)+len(e.plugins)+2)
	opts = append(opts, access.WithLogger(logger))

	if e.config.MaxDependDepth > 0 || e.config.DisableCache {
		opts = append(opts, access.WithConfig(access.Config{
			MaxDependDepth: e.config.MaxDependDepth,
			DisableCache:   e.config.DisableCache,
		}))
	}

	// Try to resolve store from DI container, fall back to option-provided store.
	if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		opts = append(opts, access.WithStore(s))
	}

	// Append user-provided options (may override store).
	opts = append(opts, e.engineOpts...)

	for _, x := range e.plugins {
		opts = append(opts, access.WithPlugin(x))
	}

	eng, err := access.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("access: create engine: %w", err)
	}
	e.eng = eng

	return nil
}

// Start runs migrations if enabled and begins the access engine.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("access: extension not initialized")
	}

	if !e.config.DisableMigrate {
		s := e.eng.Store()
		if s != nil {
			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("access: migration failed: %w", err)
			}
		}
	}

	return e.eng.Start(ctx)
}

// Stop gracefully shuts down the access engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("access: extension not initialized")
	}
	s := e.eng.Store()
	if s == nil {
		return errors.New("access: no store configured")
	}
	return s.Ping(ctx)
}
