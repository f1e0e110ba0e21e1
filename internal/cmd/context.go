package cmd

import (
	"context"

	"github.com/nextfoam/biprop/internal/config"
	"github.com/nextfoam/biprop/internal/services"
)

// Context keys are unexported struct types so no other package can
// collide with them.
type (
	configKey   struct{}
	loaderKey   struct{}
	servicesKey struct{}
)

// ctxValue returns the value stored under key, or T's zero value when
// absent.
func ctxValue[T any](ctx context.Context, key any) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// WithConfig stores the loaded configuration on the context.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFromContext returns the configuration, or nil before the root
// command's setup ran.
func ConfigFromContext(ctx context.Context) *config.Config {
	return ctxValue[*config.Config](ctx, configKey{})
}

// WithLoader stores the config loader on the context.
func WithLoader(ctx context.Context, loader *config.Loader) context.Context {
	return context.WithValue(ctx, loaderKey{}, loader)
}

// LoaderFromContext returns the config loader, or nil when none was
// stored.
func LoaderFromContext(ctx context.Context) *config.Loader {
	return ctxValue[*config.Loader](ctx, loaderKey{})
}

// WithServices stores the service registry on the context.
func WithServices(ctx context.Context, registry *services.Registry) context.Context {
	return context.WithValue(ctx, servicesKey{}, registry)
}

// ServicesFromContext returns the service registry, or nil when none
// was stored.
func ServicesFromContext(ctx context.Context) *services.Registry {
	return ctxValue[*services.Registry](ctx, servicesKey{})
}
