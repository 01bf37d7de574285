package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/logger"
	"go-image-tagger/internal/prompt"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini analyzes images with the Gemini API.
type Gemini struct {
	model  string
	client *genai.Client
}

// NewGemini validates cfg and builds the client. No network call is made.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, apperrors.NewConfigurationError("API key is required for gemini", nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, apperrors.NewConfigurationError("model is required", nil)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to create gemini client", err)
	}
	return &Gemini{model: cfg.Model, client: client}, nil
}

// Name returns the provider name.
func (g *Gemini) Name() string {
	return "gemini"
}

// Analyze sends the image inline with a response schema for the active fields.
func (g *Gemini) Analyze(ctx context.Context, req Request) (fields.Result, error) {
	start := time.Now()
	log := logger.WithFields(logrus.Fields{
		"provider": "gemini",
		"model":    g.model,
		"bytes":    len(req.Image),
	})

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt.UserInstruction),
			genai.NewPartFromBytes(req.Image, mediaType),
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   geminiSchema(req.Active),
	}
	if strings.TrimSpace(req.Directive) != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Directive, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		log.WithError(err).Error("Gemini request failed")
		return nil, g.wrapError(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, apperrors.NewAnalysisError("gemini returned no content", nil)
	}

	result, err := parseResult(text, req)
	if err != nil {
		log.WithError(err).Error("Failed to parse model output")
		return nil, err
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Gemini request succeeded")
	return result, nil
}

func (g *Gemini) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewAnalysisError(
			fmt.Sprintf("gemini returned status %d", apiErr.Code), errors.New(apiErr.Message))
	}
	return classify("gemini", err)
}

func geminiSchema(active fields.Catalog) *genai.Schema {
	props := make(map[string]*genai.Schema, len(active))
	required := make([]string, 0, len(active))
	for _, d := range active {
		s := &genai.Schema{Type: genai.TypeString, Description: d.Instruction}
		if d.Shape == fields.List {
			s = &genai.Schema{
				Type:        genai.TypeArray,
				Description: d.Instruction,
				Items:       &genai.Schema{Type: genai.TypeString},
			}
		}
		props[d.Name] = s
		required = append(required, d.Name)
	}
	return &genai.Schema{
		Type:             genai.TypeObject,
		Properties:       props,
		Required:         required,
		PropertyOrdering: active.Names(),
	}
}
