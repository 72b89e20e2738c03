package ports

import "github.com/thushan/dispatch/internal/core/domain"

// ParameterTranslator maps the canonical (OpenAI-shaped) request into one
// provider family's wire parameter names. Providers whose
// wire format is already snake_case-native get a fast-path passthrough
// implementation that skips the mapping table entirely.
type ParameterTranslator interface {
	Kind() domain.ProviderKind

	// Translate returns the wire-ready parameter map for req, with
	// req.ProviderOverrides shallow-merged last so callers can always
	// override a translated field.
	Translate(req domain.NormalisedRequest) (map[string]interface{}, error)
}

// TranslatorRegistry resolves a domain.ProviderKind to its translator.
type TranslatorRegistry interface {
	For(kind domain.ProviderKind) (ParameterTranslator, error)
	Register(t ParameterTranslator)
}
