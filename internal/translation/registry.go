package translation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultProviderName is used when no provider is configured.
const DefaultProviderName = "loopback"

// ProviderOptions carries provider settings resolved from configuration.
type ProviderOptions struct {
	Default         string
	Endpoint        string
	Model           string
	LoopbackLatency time.Duration
}

// Registry stores translation providers and resolves a default provider.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	normalizedDefault := normalizeProviderName(defaultProvider)
	if normalizedDefault == "" {
		normalizedDefault = DefaultProviderName
	}

	return &Registry{
		providers:       make(map[string]Provider),
		defaultProvider: normalizedDefault,
	}
}

// NewRegistryFromOptions registers the built-in providers.
// Unlike the default lookup in Provider, an unknown default is an error here.
func NewRegistryFromOptions(opts ProviderOptions) (*Registry, error) {
	registry := NewRegistry(opts.Default)
	_ = registry.Register(NewLoopbackProvider(opts.LoopbackLatency))
	_ = registry.Register(NewLocalProvider(opts.Endpoint, opts.Model))

	if _, exists := registry.providers[registry.defaultProvider]; !exists {
		return nil, fmt.Errorf("translation provider %q is not registered (available: %s)", registry.defaultProvider, strings.Join(registry.ProviderNames(), ", "))
	}
	return registry, nil
}

// Register adds one provider.
func (r *Registry) Register(provider Provider) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	name := normalizeProviderName(provider.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.providers[name] = provider
	return nil
}

// Provider resolves a provider by name. Empty names use the configured default provider.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no translation providers are registered")
	}

	resolvedName := normalizeProviderName(name)
	if resolvedName == "" {
		resolvedName = r.defaultProvider
	}
	provider, ok := r.providers[resolvedName]
	if ok {
		return provider, nil
	}

	return nil, fmt.Errorf("translation provider %q is not registered (available: %s)", resolvedName, strings.Join(r.ProviderNames(), ", "))
}

func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type readinessChecker interface {
	Ready(ctx context.Context) error
}

type modelNamer interface {
	ModelName() string
}

// Describe names provider and, when it reports one, the model it serves.
func Describe(provider Provider) string {
	if provider == nil {
		return ""
	}
	if namer, ok := provider.(modelNamer); ok {
		if model := namer.ModelName(); model != "" {
			return provider.Name() + " (" + model + ")"
		}
	}
	return provider.Name()
}

// CheckReady reports whether provider can currently serve requests.
// Providers without a readiness probe are assumed ready.
func CheckReady(ctx context.Context, provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	checker, ok := provider.(readinessChecker)
	if !ok {
		return nil
	}
	return checker.Ready(ctx)
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
