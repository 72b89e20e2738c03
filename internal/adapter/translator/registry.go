package translator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/core/ports"
	"github.com/thushan/dispatch/internal/logger"
)

// Registry is the ports.TranslatorRegistry implementation, adapted from the
// teacher's translator.Registry (internal/adapter/translator/registry.go)
// keyed on domain.ProviderKind instead of a free-form translator name.
type Registry struct {
	translators map[domain.ProviderKind]ports.ParameterTranslator
	log         *logger.StyledLogger
	mu          sync.RWMutex
}

func NewRegistry(log *logger.StyledLogger) *Registry {
	return &Registry{
		translators: make(map[domain.ProviderKind]ports.ParameterTranslator),
		log:         log,
	}
}

func (r *Registry) Register(t ports.ParameterTranslator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.translators[t.Kind()]; exists {
		r.log.Warn("overwriting existing translator",
			"kind", t.Kind(), "old", fmt.Sprintf("%T", existing), "new", fmt.Sprintf("%T", t))
	}
	r.translators[t.Kind()] = t
}

func (r *Registry) For(kind domain.ProviderKind) (ports.ParameterTranslator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.translators[kind]
	if !ok {
		return nil, fmt.Errorf("translator not registered for provider kind %q (available: %v)", kind, r.availableLocked())
	}
	return t, nil
}

func (r *Registry) availableLocked() []string {
	names := make([]string, 0, len(r.translators))
	for k := range r.translators {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}
