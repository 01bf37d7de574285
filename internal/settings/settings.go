// Package settings is the user-editable analysis configuration: which model
// provider to call, how to phrase the directive, and which fields to extract.
package settings

import (
	"fmt"
	"strings"

	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"
	"go-image-tagger/pkg/validation"
)

// ProviderKind selects the analysis gateway variant.
type ProviderKind string

const (
	// ProviderGateway is a hosted, OpenAI-compatible AI gateway.
	ProviderGateway ProviderKind = "gateway"
	// ProviderOllama is a locally hosted OpenAI-compatible endpoint.
	ProviderOllama ProviderKind = "ollama"
	// ProviderCustom is any other OpenAI-compatible endpoint.
	ProviderCustom ProviderKind = "custom"
	// ProviderGemini is the hosted Gemini API.
	ProviderGemini ProviderKind = "gemini"
)

// Tone selects the voice of generated text.
type Tone string

const (
	ToneNeutral      Tone = "neutral"
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneCreative     Tone = "creative"
	ToneTechnical    Tone = "technical"
	ToneMarketing    Tone = "marketing"
	ToneCustom       Tone = "custom"
)

// CustomModel is the model-list sentinel meaning "use CustomModel".
const CustomModel = "custom"

// MaxConcurrency bounds the parallel run mode.
const MaxConcurrency = 8

const (
	DefaultOllamaBaseURL = "http://localhost:11434/v1"
	DefaultSystemMessage = "You are an expert image analyst. Analyze the provided image carefully and extract structured metadata. Be precise, descriptive, and helpful."
)

// ModelOption is an entry of a provider's model picker.
type ModelOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ProviderOption describes a provider kind for selection lists.
type ProviderOption struct {
	Kind  ProviderKind `json:"kind"`
	Label string       `json:"label"`
}

// Providers lists the provider kinds in display order.
func Providers() []ProviderOption {
	return []ProviderOption{
		{Kind: ProviderGateway, Label: "AI Gateway"},
		{Kind: ProviderOllama, Label: "Ollama (Local)"},
		{Kind: ProviderCustom, Label: "Custom OpenAI-Compatible"},
		{Kind: ProviderGemini, Label: "Google Gemini"},
	}
}

// IsProvider reports whether kind is a known provider kind.
func IsProvider(kind ProviderKind) bool {
	for _, p := range Providers() {
		if p.Kind == kind {
			return true
		}
	}
	return false
}

// GatewayModels lists the models offered for the hosted gateway. The last
// entry is the custom sentinel.
func GatewayModels() []ModelOption {
	return []ModelOption{
		{Value: "openai/gpt-4o", Label: "GPT-4o"},
		{Value: "openai/gpt-4o-mini", Label: "GPT-4o Mini"},
		{Value: "anthropic/claude-sonnet-4", Label: "Claude Sonnet 4"},
		{Value: "google/gemini-2.5-flash", Label: "Gemini 2.5 Flash"},
		{Value: CustomModel, Label: "Custom"},
	}
}

// Settings is one snapshot of the analysis configuration.
type Settings struct {
	Provider      ProviderKind      `json:"provider" mapstructure:"provider"`
	Model         string            `json:"model" mapstructure:"model"`
	CustomModel   string            `json:"customModel,omitempty" mapstructure:"custom_model"`
	BaseURL       string            `json:"baseUrl,omitempty" mapstructure:"base_url"`
	APIKey        string            `json:"apiKey,omitempty" mapstructure:"api_key"`
	SystemMessage string            `json:"systemMessage" mapstructure:"system_message"`
	Tone          Tone              `json:"tone" mapstructure:"tone"`
	CustomTone    string            `json:"customTone,omitempty" mapstructure:"custom_tone"`
	Enabled       []string          `json:"enabledOutputs" mapstructure:"enabled_outputs"`
	Instructions  map[string]string `json:"outputDescriptions,omitempty" mapstructure:"output_descriptions"`
	Concurrency   int               `json:"concurrency" mapstructure:"concurrency"`
}

// Default returns the initial settings for catalog: hosted gateway, every
// field enabled.
func Default(catalog fields.Catalog) Settings {
	return Settings{
		Provider:      ProviderGateway,
		Model:         "openai/gpt-4o",
		SystemMessage: DefaultSystemMessage,
		Tone:          ToneProfessional,
		Enabled:       catalog.Names(),
		Concurrency:   1,
	}
}

// Clone returns a deep copy, used as the read-only snapshot of a run.
func (s Settings) Clone() Settings {
	out := s
	out.Enabled = append([]string(nil), s.Enabled...)
	if s.Instructions != nil {
		out.Instructions = make(map[string]string, len(s.Instructions))
		for k, v := range s.Instructions {
			out.Instructions[k] = v
		}
	}
	return out
}

// SetProvider switches provider kind and resets model and endpoint to that
// provider's defaults.
func (s *Settings) SetProvider(kind ProviderKind) {
	s.Provider = kind
	s.CustomModel = ""
	switch kind {
	case ProviderGateway:
		s.Model = "openai/gpt-4o"
		s.BaseURL = ""
	case ProviderOllama:
		s.Model = "llava"
		s.BaseURL = DefaultOllamaBaseURL
	case ProviderGemini:
		s.Model = "gemini-2.5-flash"
		s.BaseURL = ""
	default:
		s.Model = ""
		s.BaseURL = ""
	}
}

// EffectiveModel resolves the custom sentinel to the custom model name.
func (s Settings) EffectiveModel() string {
	if s.Model == CustomModel {
		return strings.TrimSpace(s.CustomModel)
	}
	model := strings.TrimSpace(s.Model)
	if s.Provider == ProviderOllama {
		model = strings.TrimPrefix(model, "ollama/")
	}
	return model
}

// IsEnabled reports whether field is enabled.
func (s Settings) IsEnabled(field string) bool {
	for _, name := range s.Enabled {
		if name == field {
			return true
		}
	}
	return false
}

// EnableField enables field; enabling an enabled field is a no-op.
func (s *Settings) EnableField(field string) {
	if !s.IsEnabled(field) {
		s.Enabled = append(s.Enabled, field)
	}
}

// DisableField disables field unless it is the last enabled one.
func (s *Settings) DisableField(field string) {
	if !s.IsEnabled(field) || s.distinctEnabled() <= 1 {
		return
	}
	out := make([]string, 0, len(s.Enabled)-1)
	for _, name := range s.Enabled {
		if name != field {
			out = append(out, name)
		}
	}
	s.Enabled = out
}

func (s Settings) distinctEnabled() int {
	seen := make(map[string]struct{}, len(s.Enabled))
	for _, name := range s.Enabled {
		seen[name] = struct{}{}
	}
	return len(seen)
}

// Canonicalize drops duplicate and unknown enabled fields and puts the rest
// in catalog order.
func (s *Settings) Canonicalize(catalog fields.Catalog) {
	s.Enabled = catalog.Filter(s.Enabled).Names()
}

// ToggleField flips field. Turning off the last enabled field does nothing.
func (s *Settings) ToggleField(field string) {
	if s.IsEnabled(field) {
		s.DisableField(field)
		return
	}
	s.EnableField(field)
}

// EnableAll enables every catalog field.
func (s *Settings) EnableAll(catalog fields.Catalog) {
	s.Enabled = catalog.Names()
}

// ResetFields enables only the first catalog field.
func (s *Settings) ResetFields(catalog fields.Catalog) {
	if len(catalog) > 0 {
		s.Enabled = []string{catalog[0].Name}
	}
}

// SetInstruction overrides a field's instruction; blank text restores the default.
func (s *Settings) SetInstruction(field, text string) {
	if strings.TrimSpace(text) == "" {
		delete(s.Instructions, field)
		return
	}
	if s.Instructions == nil {
		s.Instructions = make(map[string]string)
	}
	s.Instructions[field] = text
}

// Instruction returns the instruction for d, preferring a non-blank override.
func (s Settings) Instruction(d fields.Descriptor) string {
	if text, ok := s.Instructions[d.Name]; ok && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	return d.Instruction
}

// ActiveFields returns the enabled descriptors in canonical order.
func (s Settings) ActiveFields(catalog fields.Catalog) fields.Catalog {
	return catalog.Filter(s.Enabled)
}

// Validate checks the settings before any gateway call is made. All
// failures are configuration errors.
func (s Settings) Validate(catalog fields.Catalog) error {
	switch s.Provider {
	case ProviderGateway, ProviderGemini:
	case ProviderOllama, ProviderCustom:
		if strings.TrimSpace(s.BaseURL) == "" {
			return apperrors.NewConfigurationError(
				fmt.Sprintf("base URL is required for %s providers", s.Provider), nil)
		}
		if err := validation.NewURLValidator().ValidateEndpointURL(s.BaseURL); err != nil {
			return err
		}
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown provider %q", s.Provider), nil)
	}

	if s.EffectiveModel() == "" {
		return apperrors.NewConfigurationError("model is required", nil)
	}

	switch s.Tone {
	case ToneNeutral, ToneProfessional, ToneCasual, ToneCreative, ToneTechnical, ToneMarketing:
	case ToneCustom:
		if strings.TrimSpace(s.CustomTone) == "" {
			return apperrors.NewConfigurationError("custom tone text is required", nil)
		}
	default:
		return apperrors.NewConfigurationError(fmt.Sprintf("unknown tone %q", s.Tone), nil)
	}

	if len(s.Enabled) == 0 {
		return apperrors.NewConfigurationError("at least one output field must be enabled", nil)
	}
	seen := make(map[string]bool, len(s.Enabled))
	for _, name := range s.Enabled {
		if _, ok := catalog.Lookup(name); !ok {
			return apperrors.NewConfigurationError(fmt.Sprintf("unknown output field %q", name), nil)
		}
		if seen[name] {
			return apperrors.NewConfigurationError(fmt.Sprintf("output field %q enabled twice", name), nil)
		}
		seen[name] = true
	}
	for name := range s.Instructions {
		if _, ok := catalog.Lookup(name); !ok {
			return apperrors.NewConfigurationError(fmt.Sprintf("instruction for unknown field %q", name), nil)
		}
	}

	if s.Concurrency < 1 || s.Concurrency > MaxConcurrency {
		return apperrors.NewConfigurationError(
			fmt.Sprintf("concurrency must be between 1 and %d", MaxConcurrency), nil)
	}
	return nil
}
