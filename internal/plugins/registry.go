package plugins

import (
	"context"

	"github.com/joshp123/gobed/internal/blob"
	"github.com/joshp123/gobed/internal/config"
	"github.com/joshp123/gobed/internal/core"
	"github.com/joshp123/gobed/internal/statefile"
)

// Deps bundles the shared infrastructure handed to plugin factories.
type Deps struct {
	Config *config.Config
	Files  *statefile.Store
	Blobs  blob.Store
}

// Factory builds a plugin instance from the loaded config. A factory
// returning (nil, nil) is not configured for this deployment; an error is
// fatal at startup.
type Factory func(ctx context.Context, deps Deps) (core.Plugin, error)

var compiled []Factory

// Register adds a compiled-in plugin factory to the registry.
func Register(factory Factory) {
	compiled = append(compiled, factory)
}

// Compiled returns the configured plugin instances for this build.
func Compiled(ctx context.Context, deps Deps) ([]core.Plugin, error) {
	out := make([]core.Plugin, 0, len(compiled))
	for _, factory := range compiled {
		plugin, err := factory(ctx, deps)
		if err != nil {
			return nil, err
		}
		if plugin == nil {
			continue
		}
		out = append(out, plugin)
	}
	return out, nil
}
