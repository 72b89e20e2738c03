package translator

import (
	"testing"

	"github.com/thushan/dispatch/internal/core/domain"
	"github.com/thushan/dispatch/internal/logger"
	"github.com/thushan/dispatch/theme"
)

func testTranslatorLogger() *logger.StyledLogger {
	log, _, _ := logger.New(&logger.Config{Level: "error", Theme: "default"})
	return logger.NewStyledLogger(log, theme.Default())
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestRegistry_RegisterAndFor(t *testing.T) {
	reg := NewRegistry(testTranslatorLogger())
	reg.Register(NewPassthroughTranslator(domain.ProviderOpenAI))

	got, err := reg.For(domain.ProviderOpenAI)
	if err != nil {
		t.Fatalf("expected registered translator, got error: %v", err)
	}
	if got.Kind() != domain.ProviderOpenAI {
		t.Errorf("expected kind openai, got %s", got.Kind())
	}
}

func TestRegistry_ForUnregisteredKindErrors(t *testing.T) {
	reg := NewRegistry(testTranslatorLogger())
	if _, err := reg.For(domain.ProviderAnthropic); err == nil {
		t.Fatal("expected an error for an unregistered provider kind")
	}
}

func TestPassthroughTranslator_FastPathSkipsExtendedFields(t *testing.T) {
	tr := NewPassthroughTranslator(domain.ProviderOpenAI)
	req := domain.NormalisedRequest{
		Model:       "gpt-4o",
		Messages:    []domain.CanonicalMessage{{Role: "user", Content: "hi"}},
		Temperature: floatPtr(0.7),
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["model"] != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %v", out["model"])
	}
	if out["temperature"] != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", out["temperature"])
	}
	if _, hasChatTemplate := out["chat_template_kwargs"]; hasChatTemplate {
		t.Error("did not expect chat_template_kwargs for a plain OpenAI request")
	}
}

func TestPassthroughTranslator_VLLMFamilyAppliesChatTemplateKwargs(t *testing.T) {
	tr := NewPassthroughTranslator(domain.ProviderRunpod)
	enable := true
	req := domain.NormalisedRequest{
		Model:          "llama-3",
		Messages:       []domain.CanonicalMessage{{Role: "user", Content: "hi"}},
		EnableThinking: &enable,
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kwargs, ok := out["chat_template_kwargs"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected chat_template_kwargs map, got %v", out["chat_template_kwargs"])
	}
	if kwargs["enable_thinking"] != true {
		t.Errorf("expected enable_thinking true, got %v", kwargs["enable_thinking"])
	}
}

func TestPassthroughTranslator_OverridesWin(t *testing.T) {
	tr := NewPassthroughTranslator(domain.ProviderOpenAI)
	req := domain.NormalisedRequest{
		Model:             "gpt-4o",
		Messages:          []domain.CanonicalMessage{{Role: "user", Content: "hi"}},
		ProviderOverrides: map[string]interface{}{"model": "gpt-4o-override"},
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["model"] != "gpt-4o-override" {
		t.Errorf("expected override to win, got %v", out["model"])
	}
}

func TestAnthropicTranslator_SplitsSystemPromptAndDefaultsMaxTokens(t *testing.T) {
	tr := NewAnthropicTranslator(domain.ProviderAnthropic)
	req := domain.NormalisedRequest{
		Model: "claude-3-5-sonnet",
		Messages: []domain.CanonicalMessage{
			{Role: "system", Content: "be concise"},
			{Role: "user", Content: "hi"},
		},
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["system"] != "be concise" {
		t.Errorf("expected system prompt pulled out, got %v", out["system"])
	}
	if out["max_tokens"] != 4096 {
		t.Errorf("expected default max_tokens 4096, got %v", out["max_tokens"])
	}
	messages, ok := out["messages"].([]map[string]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("expected exactly one non-system message, got %v", out["messages"])
	}
}

func TestAnthropicTranslator_StopBecomesStopSequences(t *testing.T) {
	tr := NewAnthropicTranslator(domain.ProviderAnthropic)
	req := domain.NormalisedRequest{
		Model:    "claude-3-5-sonnet",
		Messages: []domain.CanonicalMessage{{Role: "user", Content: "hi"}},
		Stop:     []string{"STOP"},
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stop, ok := out["stop_sequences"].([]string)
	if !ok || len(stop) != 1 || stop[0] != "STOP" {
		t.Errorf("expected stop_sequences [STOP], got %v", out["stop_sequences"])
	}
}

func TestBedrockAnthropicTranslator_WrapsInBedrockEnvelope(t *testing.T) {
	tr := NewBedrockAnthropicTranslator()
	req := domain.NormalisedRequest{
		Model:     "claude-3-5-sonnet",
		Messages:  []domain.CanonicalMessage{{Role: "user", Content: "hi"}},
		MaxTokens: intPtr(512),
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["anthropic_version"] != "bedrock-2023-05-31" {
		t.Errorf("expected anthropic_version envelope field, got %v", out["anthropic_version"])
	}
	if _, hasModel := out["model"]; hasModel {
		t.Error("did not expect a model field in the Bedrock invoke body")
	}
	if _, hasStream := out["stream"]; hasStream {
		t.Error("did not expect a stream field in the Bedrock invoke body")
	}
}

func TestBedrockTitanTranslator_Shape(t *testing.T) {
	tr := NewBedrockTitanTranslator()
	req := domain.NormalisedRequest{
		Messages:  []domain.CanonicalMessage{{Role: "user", Content: "hi"}},
		MaxTokens: intPtr(100),
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out["inputText"]; !ok {
		t.Fatal("expected inputText field in Titan wire shape")
	}
	cfg, ok := out["textGenerationConfig"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected textGenerationConfig map, got %v", out["textGenerationConfig"])
	}
	if cfg["maxTokenCount"] != 100 {
		t.Errorf("expected maxTokenCount 100, got %v", cfg["maxTokenCount"])
	}
}

func TestBedrockNovaTranslator_ContentBecomesPartsList(t *testing.T) {
	tr := NewBedrockNovaTranslator()
	req := domain.NormalisedRequest{
		Messages: []domain.CanonicalMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
		},
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	messages, ok := out["messages"].([]map[string]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("expected one non-system message, got %v", out["messages"])
	}
	parts, ok := messages[0]["content"].([]map[string]interface{})
	if !ok || len(parts) != 1 || parts[0]["text"] != "hi" {
		t.Errorf("expected content as a single {text} part, got %v", messages[0]["content"])
	}
	if _, hasSystem := out["system"]; !hasSystem {
		t.Error("expected system field to be set from the split system prompt")
	}
}

func TestBedrockCohereTranslator_LastUserTurnBecomesMessage(t *testing.T) {
	tr := NewBedrockCohereTranslator()
	req := domain.NormalisedRequest{
		Messages: []domain.CanonicalMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "reply"},
			{Role: "user", Content: "second"},
		},
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["message"] != "second" {
		t.Errorf("expected last user turn as message, got %v", out["message"])
	}
	if out["preamble"] != "be terse" {
		t.Errorf("expected preamble from system prompt, got %v", out["preamble"])
	}
	history, ok := out["chat_history"].([]map[string]interface{})
	if !ok || len(history) != 2 {
		t.Fatalf("expected 2 entries in chat_history, got %v", out["chat_history"])
	}
}

func TestBedrockLlamaTranslator_Shape(t *testing.T) {
	tr := NewBedrockLlamaTranslator()
	req := domain.NormalisedRequest{
		Messages:  []domain.CanonicalMessage{{Role: "user", Content: "hi"}},
		MaxTokens: intPtr(256),
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt, ok := out["prompt"].(string)
	if !ok || prompt == "" {
		t.Fatalf("expected a non-empty rendered prompt, got %v", out["prompt"])
	}
	if out["max_gen_len"] != 256 {
		t.Errorf("expected max_gen_len 256, got %v", out["max_gen_len"])
	}
}

func TestBedrockAI21Translator_KeepsMessagesArray(t *testing.T) {
	tr := NewBedrockAI21Translator()
	req := domain.NormalisedRequest{
		Messages: []domain.CanonicalMessage{{Role: "user", Content: "hi"}},
	}

	out, err := tr.Translate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	messages, ok := out["messages"].([]map[string]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("expected a messages array, got %v", out["messages"])
	}
}
