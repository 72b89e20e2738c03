package translator

import "github.com/thushan/dispatch/internal/core/domain"

// applyExtendedFields folds the long tail of canonical sampling/runtime
// parameters (top_k, seed, n, min_p, ...) onto an already-built wire body.
// Undefined fields are omitted rather than serialised as null/zero.
func applyExtendedFields(out map[string]interface{}, req domain.NormalisedRequest) {
	if req.TopK != nil {
		out["top_k"] = *req.TopK
	}
	if req.User != "" {
		out["user"] = req.User
	}
	if req.Seed != nil {
		out["seed"] = *req.Seed
	}
	if req.N != nil {
		out["n"] = *req.N
	}
	if req.MinP != nil {
		out["min_p"] = *req.MinP
	}
	if req.RepetitionPenalty != nil {
		out["repetition_penalty"] = *req.RepetitionPenalty
	}
	if req.LengthPenalty != nil {
		out["length_penalty"] = *req.LengthPenalty
	}
	if req.IgnoreEOS != nil {
		out["ignore_eos"] = *req.IgnoreEOS
	}
	if req.BestOf != nil {
		out["best_of"] = *req.BestOf
	}
	if req.Echo != nil {
		out["echo"] = *req.Echo
	}
	if req.Logprobs != nil {
		out["logprobs"] = *req.Logprobs
	}
	if len(req.LogitBias) > 0 {
		out["logit_bias"] = req.LogitBias
	}
	if req.IncludeStopStrInOutput != nil {
		out["include_stop_str_in_output"] = *req.IncludeStopStrInOutput
	}
}

// RegisterDefaults wires every known provider kind's translator into reg,
// using the passthrough fast path for snake_case-native dialects and a
// dedicated mapping-table translator for everything else.
func RegisterDefaults(reg *Registry) {
	for _, kind := range []domain.ProviderKind{
		domain.ProviderOpenAI, domain.ProviderTogether, domain.ProviderRunpod, domain.ProviderCustom,
	} {
		reg.Register(NewPassthroughTranslator(kind))
	}

	reg.Register(NewAnthropicTranslator(domain.ProviderAnthropic))
	reg.Register(NewBedrockAnthropicTranslator())
	reg.Register(NewBedrockTitanTranslator())
	reg.Register(NewBedrockNovaTranslator())
	reg.Register(NewBedrockLlamaTranslator())
	reg.Register(NewBedrockMistralTranslator())
	reg.Register(NewBedrockCohereTranslator())
	reg.Register(NewBedrockAI21Translator())
}
