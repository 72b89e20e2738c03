package translator

import (
	"strings"

	"github.com/thushan/dispatch/internal/core/domain"
)

// bedrockAnthropicTranslator wraps AnthropicTranslator's output in the
// envelope bedrock-runtime's InvokeModel expects for Anthropic models:
// anthropic_version plus the same message/parameter shape.
type bedrockAnthropicTranslator struct {
	inner *AnthropicTranslator
}

func NewBedrockAnthropicTranslator() *bedrockAnthropicTranslator {
	return &bedrockAnthropicTranslator{inner: NewAnthropicTranslator(domain.ProviderBedrockAnthropic)}
}

func (b *bedrockAnthropicTranslator) Kind() domain.ProviderKind { return domain.ProviderBedrockAnthropic }

func (b *bedrockAnthropicTranslator) Translate(req domain.NormalisedRequest) (map[string]interface{}, error) {
	out, err := b.inner.Translate(req)
	if err != nil {
		return nil, err
	}
	delete(out, "model")
	delete(out, "stream")
	out["anthropic_version"] = "bedrock-2023-05-31"
	return out, nil
}

// promptFamilyTranslator covers the Bedrock families whose wire shape is a
// single prompt string under promptKey (flattened by default, or rendered by
// buildPrompt) plus family-specific sampling fields at the top level
// (Llama, Mistral). Titan, Cohere and
// AI21 each diverge enough (different top-level field, or a structured
// messages/chat_history shape) to need their own Translate.
type promptFamilyTranslator struct {
	kind       domain.ProviderKind
	promptKey  string
	fields     func(req domain.NormalisedRequest) map[string]interface{}
	buildPrompt func(messages []domain.CanonicalMessage) string
}

func (t *promptFamilyTranslator) Kind() domain.ProviderKind { return t.kind }

func (t *promptFamilyTranslator) Translate(req domain.NormalisedRequest) (map[string]interface{}, error) {
	build := t.buildPrompt
	if build == nil {
		build = flattenPrompt
	}
	out := map[string]interface{}{
		t.promptKey: build(req.Messages),
	}
	for k, v := range t.fields(req) {
		out[k] = v
	}
	mergeOverrides(out, req.ProviderOverrides)
	return out, nil
}

func flattenPrompt(messages []domain.CanonicalMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		if text, ok := m.Content.(string); ok {
			sb.WriteString(strings.ToUpper(m.Role[:1]) + m.Role[1:] + ": " + text + "\n\n")
		}
	}
	return sb.String()
}

// llamaInstructPrompt renders the conversation using Meta's Llama 3
// instruct chat template, since Bedrock's Llama invoke endpoint takes a
// single already-templated prompt string rather than a messages array.
func llamaInstructPrompt(messages []domain.CanonicalMessage) string {
	var sb strings.Builder
	sb.WriteString("<|begin_of_text|>")
	for _, m := range messages {
		text, _ := m.Content.(string)
		sb.WriteString("<|start_header_id|>" + m.Role + "<|end_header_id|>\n\n" + text + "<|eot_id|>")
	}
	sb.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	return sb.String()
}

// bedrockTitanTranslator renders the canonical request into Amazon
// Titan's {inputText, textGenerationConfig{...}} wire shape.
type bedrockTitanTranslator struct{}

func NewBedrockTitanTranslator() *bedrockTitanTranslator { return &bedrockTitanTranslator{} }

func (t *bedrockTitanTranslator) Kind() domain.ProviderKind { return domain.ProviderBedrockTitan }

func (t *bedrockTitanTranslator) Translate(req domain.NormalisedRequest) (map[string]interface{}, error) {
	cfg := map[string]interface{}{}
	if req.MaxTokens != nil {
		cfg["maxTokenCount"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		cfg["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		cfg["topP"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		cfg["stopSequences"] = req.Stop
	}

	out := map[string]interface{}{"inputText": flattenPrompt(req.Messages)}
	if len(cfg) > 0 {
		out["textGenerationConfig"] = cfg
	}
	mergeOverrides(out, req.ProviderOverrides)
	return out, nil
}

// bedrockNovaTranslator restructures the canonical request into Amazon
// Nova's shape: messages keep their role but each turn's content becomes a
// list of {text} parts rather than a bare string, and sampling parameters
// move under inferenceConfig instead of sitting at the top level.
type bedrockNovaTranslator struct{}

func NewBedrockNovaTranslator() *bedrockNovaTranslator { return &bedrockNovaTranslator{} }

func (n *bedrockNovaTranslator) Kind() domain.ProviderKind { return domain.ProviderBedrockNova }

func (n *bedrockNovaTranslator) Translate(req domain.NormalisedRequest) (map[string]interface{}, error) {
	messages, system := splitSystemPrompt(req.Messages)

	wire := make([]map[string]interface{}, 0, len(messages))
	for _, m := range messages {
		text, _ := m.Content.(string)
		wire = append(wire, map[string]interface{}{
			"role":    m.Role,
			"content": []map[string]interface{}{{"text": text}},
		})
	}

	inference := map[string]interface{}{}
	if req.MaxTokens != nil {
		inference["max_new_tokens"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		inference["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		inference["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		inference["stopSequences"] = req.Stop
	}

	out := map[string]interface{}{"messages": wire}
	if len(inference) > 0 {
		out["inferenceConfig"] = inference
	}
	if system != "" {
		out["system"] = []map[string]interface{}{{"text": system}}
	}

	mergeOverrides(out, req.ProviderOverrides)
	return out, nil
}

func NewBedrockLlamaTranslator() *promptFamilyTranslator {
	return &promptFamilyTranslator{
		kind:        domain.ProviderBedrockLlama,
		promptKey:   "prompt",
		buildPrompt: llamaInstructPrompt,
		fields: func(req domain.NormalisedRequest) map[string]interface{} {
			out := map[string]interface{}{}
			if req.MaxTokens != nil {
				out["max_gen_len"] = *req.MaxTokens
			}
			if req.Temperature != nil {
				out["temperature"] = *req.Temperature
			}
			if req.TopP != nil {
				out["top_p"] = *req.TopP
			}
			return out
		},
	}
}

func NewBedrockMistralTranslator() *promptFamilyTranslator {
	return &promptFamilyTranslator{
		kind:      domain.ProviderBedrockMistral,
		promptKey: "prompt",
		fields: func(req domain.NormalisedRequest) map[string]interface{} {
			out := map[string]interface{}{}
			if req.MaxTokens != nil {
				out["max_tokens"] = *req.MaxTokens
			}
			if req.Temperature != nil {
				out["temperature"] = *req.Temperature
			}
			if req.TopP != nil {
				out["top_p"] = *req.TopP
			}
			if len(req.Stop) > 0 {
				out["stop"] = req.Stop
			}
			return out
		},
	}
}

// bedrockCohereTranslator renders Cohere Command's chat shape: the last
// user turn becomes "message", everything before it becomes "chat_history",
// and any leading system message becomes "preamble".
type bedrockCohereTranslator struct{}

func NewBedrockCohereTranslator() *bedrockCohereTranslator { return &bedrockCohereTranslator{} }

func (c *bedrockCohereTranslator) Kind() domain.ProviderKind { return domain.ProviderBedrockCohere }

func (c *bedrockCohereTranslator) Translate(req domain.NormalisedRequest) (map[string]interface{}, error) {
	rest, preamble := splitSystemPrompt(req.Messages)

	var message string
	history := make([]map[string]interface{}, 0, len(rest))
	for i, m := range rest {
		text, _ := m.Content.(string)
		if i == len(rest)-1 && m.Role == "user" {
			message = text
			continue
		}
		role := "CHATBOT"
		if m.Role == "user" {
			role = "USER"
		}
		history = append(history, map[string]interface{}{"role": role, "message": text})
	}

	out := map[string]interface{}{"message": message}
	if len(history) > 0 {
		out["chat_history"] = history
	}
	if preamble != "" {
		out["preamble"] = preamble
	}
	if req.MaxTokens != nil {
		out["max_tokens"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		out["stop_sequences"] = req.Stop
	}

	mergeOverrides(out, req.ProviderOverrides)
	return out, nil
}

// bedrockAI21Translator renders AI21 Jamba's chat shape: a messages array
// like the canonical request rather than a flattened prompt string.
type bedrockAI21Translator struct{}

func NewBedrockAI21Translator() *bedrockAI21Translator { return &bedrockAI21Translator{} }

func (a *bedrockAI21Translator) Kind() domain.ProviderKind { return domain.ProviderBedrockAI21 }

func (a *bedrockAI21Translator) Translate(req domain.NormalisedRequest) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"messages": messagesToWire(req.Messages),
	}
	if req.MaxTokens != nil {
		out["max_tokens"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		out["stop_sequences"] = req.Stop
	}

	mergeOverrides(out, req.ProviderOverrides)
	return out, nil
}
