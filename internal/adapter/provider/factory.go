package provider

import (
	"fmt"

	"github.com/thushan/dispatch/internal/adapter/factory"
	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
)

// Factory builds one ports.ProviderAdapter per domain.ProviderKind at
// construction time and hands them out by kind, mirroring
// keeping one pooled transport per concern rather than building a fresh
// client per endpoint.
type Factory struct {
	adapters map[domain.ProviderKind]ports.ProviderAdapter
}

// NewFactory builds every known adapter up front. clients supplies the
// pooled HTTP transports shared across all HTTP-family adapters;
// translators resolves each adapter's per-provider wire parameter mapping.
func NewFactory(clients *factory.SharedClientFactory, translators ports.TranslatorRegistry, log *logger.StyledLogger) *Factory {
	httpClient := clients.GetProviderClient()
	healthClient := clients.GetHealthClient()

	f := &Factory{adapters: make(map[domain.ProviderKind]ports.ProviderAdapter)}

	for _, kind := range []domain.ProviderKind{
		domain.ProviderOpenAI, domain.ProviderTogether, domain.ProviderRunpod, domain.ProviderCustom,
	} {
		f.adapters[kind] = newOpenAICompatAdapter(kind, httpClient, healthClient, translators, log)
	}

	f.adapters[domain.ProviderAnthropic] = newAnthropicAdapter(httpClient, healthClient, translators, log)

	for _, kind := range []domain.ProviderKind{
		domain.ProviderBedrockAnthropic, domain.ProviderBedrockTitan, domain.ProviderBedrockNova,
		domain.ProviderBedrockLlama, domain.ProviderBedrockMistral, domain.ProviderBedrockCohere,
		domain.ProviderBedrockAI21,
	} {
		f.adapters[kind] = newBedrockAdapter(kind, translators, log)
	}

	return f
}

func (f *Factory) For(kind domain.ProviderKind) (ports.ProviderAdapter, error) {
	adapter, ok := f.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no provider adapter registered for kind %q", kind)
	}
	return adapter, nil
}
