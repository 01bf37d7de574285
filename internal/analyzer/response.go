package analyzer

import (
	"encoding/json"
	"errors"
	"net"
	"strings"

	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"
)

// parseResult extracts the JSON object from model output and normalizes it
// against the request's fields. Code fences and surrounding prose are
// tolerated.
func parseResult(text string, req Request) (fields.Result, error) {
	raw, err := decodeObject(text)
	if err != nil {
		return nil, apperrors.NewAnalysisError("model returned malformed output", err)
	}
	return fields.Normalize(req.Catalog, req.Active.Names(), raw), nil
}

func decodeObject(text string) (map[string]interface{}, error) {
	body := extractJSON(text)
	if body == "" {
		return nil, errors.New("no JSON object in response")
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// extractJSON returns the outermost {...} span of text, or "".
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// classify wraps a transport or provider error as an analysis or timeout error.
func classify(provider string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.NewTimeoutError(provider+" request timed out", err)
	}
	return apperrors.NewAnalysisError(provider+" request failed", err)
}
