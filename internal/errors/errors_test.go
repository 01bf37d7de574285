package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetTypeAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		typ    ErrorType
		status int
	}{
		{"configuration", NewConfigurationError("missing base URL", nil), ErrorTypeConfiguration, http.StatusBadRequest},
		{"validation", NewValidationError("bad input", nil), ErrorTypeValidation, http.StatusBadRequest},
		{"analysis", NewAnalysisError("model failed", nil), ErrorTypeAnalysis, http.StatusBadGateway},
		{"enrichment", NewEnrichmentError("upload failed", nil), ErrorTypeEnrichment, http.StatusBadGateway},
		{"timeout", NewTimeoutError("slow", nil), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"not found", NewNotFoundError("no such image", nil), ErrorTypeNotFound, http.StatusNotFound},
		{"conflict", NewConflictError("batch running", nil), ErrorTypeConflict, http.StatusConflict},
		{"internal", NewInternalError("boom", nil), ErrorTypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.True(t, IsType(tt.err, tt.typ))
		})
	}
}

func TestIsTypeFollowsWrapping(t *testing.T) {
	base := NewConfigurationError("base URL is required", nil)
	wrapped := fmt.Errorf("start batch: %w", base)

	assert.True(t, IsType(wrapped, ErrorTypeConfiguration))
	assert.False(t, IsType(wrapped, ErrorTypeAnalysis))
	assert.Equal(t, http.StatusBadRequest, GetStatusCode(wrapped))
}

func TestGetStatusCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetStatusCode(errors.New("plain")))
}

func TestMessage(t *testing.T) {
	cause := errors.New("status code 500")
	err := NewAnalysisError("analysis failed", cause)

	assert.Equal(t, "analysis failed: status code 500", Message(err))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "", Message(nil))
	assert.Contains(t, err.Error(), "caused by")
	assert.ErrorIs(t, err, cause)
}
