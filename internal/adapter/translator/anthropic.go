package translator

import "github.com/thushan/dispatch/internal/core/domain"

// AnthropicTranslator maps the canonical request onto the Anthropic
// Messages API wire shape: max_tokens is mandatory, system prompts are a
// top-level field rather than a "system" message, and stop sequences use
// the stop_sequences name.
type AnthropicTranslator struct {
	kind           domain.ProviderKind
	defaultMaxTokens int
}

func NewAnthropicTranslator(kind domain.ProviderKind) *AnthropicTranslator {
	return &AnthropicTranslator{kind: kind, defaultMaxTokens: 4096}
}

func (a *AnthropicTranslator) Kind() domain.ProviderKind { return a.kind }

func (a *AnthropicTranslator) Translate(req domain.NormalisedRequest) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"model":  req.Model,
		"stream": req.Stream,
	}

	maxTokens := a.defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	out["max_tokens"] = maxTokens

	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		out["stop_sequences"] = req.Stop
	}
	if len(req.Tools) > 0 {
		out["tools"] = req.Tools
	}
	if req.ToolChoice != nil {
		out["tool_choice"] = req.ToolChoice
	}

	messages, system := splitSystemPrompt(req.Messages)
	out["messages"] = messagesToWire(messages)
	if system != "" {
		out["system"] = system
	}

	mergeOverrides(out, req.ProviderOverrides)
	return out, nil
}

// splitSystemPrompt pulls every "system"-role message out of the
// canonical message list, wherever it appears, concatenating their text
// content into a single
// system prompt string the way Anthropic's wire format expects.
func splitSystemPrompt(messages []domain.CanonicalMessage) ([]domain.CanonicalMessage, string) {
	var system string
	rest := make([]domain.CanonicalMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if text, ok := m.Content.(string); ok {
				if system != "" {
					system += "\n\n"
				}
				system += text
			}
			continue
		}
		rest = append(rest, m)
	}
	return rest, system
}
