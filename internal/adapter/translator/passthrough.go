package translator

import "github.com/thushan/dispatch/internal/core/domain"

// vllmFamily is the set of provider kinds whose wire format is the vLLM
// OpenAI-compatible server: snake_case-native like OpenAI itself, but with
// an extra chat_template_kwargs bag for thinking-model toggles.
var vllmFamily = map[domain.ProviderKind]bool{
	domain.ProviderRunpod: true, domain.ProviderTogether: true, domain.ProviderCustom: true,
}

// PassthroughTranslator is the fast path for snake_case-native wire
// formats: the canonical request's field names already
// match the wire format, so no per-field mapping table is needed at all.
// When the request carries none of the translation-requiring extended
// fields, Translate skips straight to the "high-throughput mode" shallow
// merge the spec calls out.
type PassthroughTranslator struct {
	kind domain.ProviderKind
}

func NewPassthroughTranslator(kind domain.ProviderKind) *PassthroughTranslator {
	return &PassthroughTranslator{kind: kind}
}

func (p *PassthroughTranslator) Kind() domain.ProviderKind { return p.kind }

func (p *PassthroughTranslator) Translate(req domain.NormalisedRequest) (map[string]interface{}, error) {
	if !req.HasExtendedFields() && !vllmFamily[p.kind] {
		out := canonicalBase(req)
		mergeOverrides(out, req.ProviderOverrides)
		return out, nil
	}

	out := canonicalBase(req)
	applyExtendedFields(out, req)

	if vllmFamily[p.kind] {
		kwargs := map[string]interface{}{}
		if req.EnableThinking != nil {
			kwargs["enable_thinking"] = *req.EnableThinking
		}
		if raw, ok := req.ProviderOverrides["chat_template_kwargs"].(map[string]interface{}); ok {
			for k, v := range raw {
				kwargs[k] = v
			}
		}
		if len(kwargs) > 0 {
			out["chat_template_kwargs"] = kwargs
		}
	}

	mergeOverrides(out, withoutChatTemplateKwargs(req.ProviderOverrides))
	return out, nil
}

// withoutChatTemplateKwargs strips the key already folded into
// chat_template_kwargs above so mergeOverrides doesn't clobber it with the
// raw, un-merged override map.
func withoutChatTemplateKwargs(overrides map[string]interface{}) map[string]interface{} {
	if overrides == nil {
		return nil
	}
	if _, ok := overrides["chat_template_kwargs"]; !ok {
		return overrides
	}
	out := make(map[string]interface{}, len(overrides))
	for k, v := range overrides {
		if k == "chat_template_kwargs" {
			continue
		}
		out[k] = v
	}
	return out
}

// canonicalBase builds the OpenAI-shaped wire body directly from the
// canonical request, used as-is by snake_case-native providers and as the
// starting point other translators rewrite fields on top of.
func canonicalBase(req domain.NormalisedRequest) map[string]interface{} {
	out := map[string]interface{}{
		"model":    req.Model,
		"messages": messagesToWire(req.Messages),
		"stream":   req.Stream,
	}
	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		out["max_tokens"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		out["stop"] = req.Stop
	}
	if req.PresencePenalty != nil {
		out["presence_penalty"] = *req.PresencePenalty
	}
	if req.FrequencyPenalty != nil {
		out["frequency_penalty"] = *req.FrequencyPenalty
	}
	if len(req.Tools) > 0 {
		out["tools"] = req.Tools
	}
	if req.ToolChoice != nil {
		out["tool_choice"] = req.ToolChoice
	}
	if req.ResponseFormat != nil {
		out["response_format"] = req.ResponseFormat
	}
	return out
}

func messagesToWire(messages []domain.CanonicalMessage) []map[string]interface{} {
	wire := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		entry := map[string]interface{}{"role": m.Role, "content": m.Content}
		if m.Name != "" {
			entry["name"] = m.Name
		}
		if m.ToolCallID != "" {
			entry["tool_call_id"] = m.ToolCallID
		}
		wire = append(wire, entry)
	}
	return wire
}

// mergeOverrides shallow-merges req.ProviderOverrides on top of out, last
// write wins -- callers can always override a translated
// field by name.
func mergeOverrides(out map[string]interface{}, overrides map[string]interface{}) {
	for k, v := range overrides {
		out[k] = v
	}
}
