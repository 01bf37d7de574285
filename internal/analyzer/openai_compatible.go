package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/logger"
	"go-image-tagger/internal/prompt"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sirupsen/logrus"
)

// ResponseMode selects how structured output is requested.
type ResponseMode string

const (
	// ResponseJSONSchema asks for strict JSON schema output.
	ResponseJSONSchema ResponseMode = "json_schema"
	// ResponseJSONObject asks for any JSON object, for servers without
	// schema support.
	ResponseJSONObject ResponseMode = "json_object"
)

// OpenAIConfig configures an OpenAI-compatible client.
type OpenAIConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Mode       ResponseMode
	HTTPClient *http.Client
	// RequireAPIKey rejects construction without a key.
	RequireAPIKey bool
}

// OpenAICompatible talks to any endpoint speaking the OpenAI chat
// completions API: the hosted gateway, Ollama or a custom server.
type OpenAICompatible struct {
	name   string
	model  string
	mode   ResponseMode
	client *openai.Client
}

// NewOpenAICompatible validates cfg and builds the client. No network call
// is made.
func NewOpenAICompatible(cfg OpenAIConfig) (*OpenAICompatible, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("base URL is required for %s", cfg.Name), nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, apperrors.NewConfigurationError("model is required", nil)
	}
	if cfg.RequireAPIKey && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperrors.NewConfigurationError(fmt.Sprintf("API key is required for %s", cfg.Name), nil)
	}
	if cfg.Mode == "" {
		cfg.Mode = ResponseJSONSchema
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &OpenAICompatible{
		name:   cfg.Name,
		model:  cfg.Model,
		mode:   cfg.Mode,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name returns the provider name.
func (c *OpenAICompatible) Name() string {
	return c.name
}

// Analyze sends the image as a data URL alongside the directive.
func (c *OpenAICompatible) Analyze(ctx context.Context, req Request) (fields.Result, error) {
	start := time.Now()
	log := logger.WithFields(logrus.Fields{
		"provider": c.name,
		"model":    c.model,
		"bytes":    len(req.Image),
	})

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.Directive) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Directive,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt.UserInstruction},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL(req.MediaType, req.Image),
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: c.responseFormat(req.Active),
	})
	if err != nil {
		log.WithError(err).Error("Chat completion failed")
		return nil, c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.NewAnalysisError(c.name+" returned no choices", nil)
	}

	result, err := parseResult(resp.Choices[0].Message.Content, req)
	if err != nil {
		log.WithError(err).Error("Failed to parse model output")
		return nil, err
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Chat completion succeeded")
	return result, nil
}

func (c *OpenAICompatible) responseFormat(active fields.Catalog) *openai.ChatCompletionResponseFormat {
	if c.mode == ResponseJSONObject {
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   "image_metadata",
			Schema: responseSchema(active),
			Strict: true,
		},
	}
}

func (c *OpenAICompatible) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewAnalysisError(
			fmt.Sprintf("%s returned status %d", c.name, apiErr.HTTPStatusCode), errors.New(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return apperrors.NewAnalysisError(
			fmt.Sprintf("%s returned status %d", c.name, reqErr.HTTPStatusCode), reqErr.Err)
	}
	return classify(c.name, err)
}

// responseSchema describes the active fields as a strict JSON schema.
func responseSchema(active fields.Catalog) *jsonschema.Definition {
	props := make(map[string]jsonschema.Definition, len(active))
	required := make([]string, 0, len(active))
	for _, d := range active {
		def := jsonschema.Definition{Type: jsonschema.String, Description: d.Instruction}
		if d.Shape == fields.List {
			def = jsonschema.Definition{
				Type:        jsonschema.Array,
				Description: d.Instruction,
				Items:       &jsonschema.Definition{Type: jsonschema.String},
			}
		}
		props[d.Name] = def
		required = append(required, d.Name)
	}
	return &jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           props,
		Required:             required,
		AdditionalProperties: false,
	}
}

func dataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
