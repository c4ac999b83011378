package completion

import (
	"fmt"

	"claimsqa/internal/config"
	"claimsqa/internal/port"
)

// ProviderFactory is a function that creates a Completer from a provider config.
type ProviderFactory func(cfg *config.ProviderConfig) (port.Completer, error)

// registry of completion provider factories, populated by init() in each
// provider package or explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a completion provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewCompleter creates a Completer from a provider config using the registered factory.
func NewCompleter(cfg *config.ProviderConfig) (port.Completer, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown completion provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// NewFromConfig builds the completer chain for the configured providers. A
// single provider is returned as is; several are wrapped in a FallbackCompleter.
func NewFromConfig(cfg *config.CompletionConfig) (port.Completer, error) {
	provCfgs := cfg.Providers()
	completers := make([]port.Completer, 0, len(provCfgs))
	names := make([]string, 0, len(provCfgs))
	for _, pc := range provCfgs {
		c, err := NewCompleter(pc)
		if err != nil {
			return nil, err
		}
		completers = append(completers, c)
		names = append(names, pc.Provider)
	}
	if len(completers) == 1 {
		return completers[0], nil
	}
	return NewFallbackCompleter(completers, names), nil
}
