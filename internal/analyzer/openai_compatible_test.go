package analyzer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "go-image-tagger/internal/errors"
	"go-image-tagger/internal/fields"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest(active ...string) Request {
	catalog := fields.DefaultCatalog()
	return Request{
		Image:     []byte{0x89, 'P', 'N', 'G'},
		MediaType: "image/png",
		Directive: "Describe the image.",
		Catalog:   catalog,
		Active:    catalog.Filter(active),
	}
}

func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func TestOpenAICompatible_Analyze(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatResponse(`{"title":"Cat","tags":["cat","cute"],"mood":null}`))
	}))
	defer server.Close()

	client, err := NewOpenAICompatible(OpenAIConfig{
		Name:          "gateway",
		BaseURL:       server.URL + "/v1/",
		APIKey:        "secret",
		Model:         "openai/gpt-4o",
		RequireAPIKey: true,
	})
	require.NoError(t, err)

	result, err := client.Analyze(context.Background(), testRequest("title", "tags"))
	require.NoError(t, err)

	assert.Equal(t, fields.Text("Cat"), result["title"])
	assert.Equal(t, []string{"cat", "cute"}, result["tags"].Items)
	assert.Equal(t, fields.Text(""), result["mood"])
	assert.Len(t, result, len(fields.DefaultCatalog()))

	assert.Equal(t, "openai/gpt-4o", captured["model"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	system := messages[0].(map[string]interface{})
	assert.Equal(t, "system", system["role"])
	assert.Equal(t, "Describe the image.", system["content"])

	user := messages[1].(map[string]interface{})
	parts := user["content"].([]interface{})
	require.Len(t, parts, 2)
	image := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(image["url"].(string), "data:image/png;base64,"))

	format := captured["response_format"].(map[string]interface{})
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]interface{})["schema"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"title", "tags"}, schema["required"])
}

func TestOpenAICompatible_JSONObjectMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		format := body["response_format"].(map[string]interface{})
		assert.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, chatResponse("```json\n{\"title\": \"Harbor at dusk\"}\n```"))
	}))
	defer server.Close()

	client, err := NewOpenAICompatible(OpenAIConfig{
		Name:    "ollama",
		BaseURL: server.URL,
		Model:   "llava",
		Mode:    ResponseJSONObject,
	})
	require.NoError(t, err)

	result, err := client.Analyze(context.Background(), testRequest("title"))
	require.NoError(t, err)
	assert.Equal(t, "Harbor at dusk", result["title"].Text)
}

func TestOpenAICompatible_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		errType apperrors.ErrorType
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"model overloaded","type":"server_error"}}`, apperrors.ErrorTypeAnalysis},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, apperrors.ErrorTypeAnalysis},
		{"no choices", http.StatusOK, `{"id":"x","choices":[]}`, apperrors.ErrorTypeAnalysis},
		{"not json", http.StatusOK, chatResponse("I cannot help with that."), apperrors.ErrorTypeAnalysis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client, err := NewOpenAICompatible(OpenAIConfig{Name: "custom", BaseURL: server.URL, Model: "m"})
			require.NoError(t, err)

			_, err = client.Analyze(context.Background(), testRequest("title"))
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.errType), err.Error())
		})
	}
}

func TestNewOpenAICompatible_Configuration(t *testing.T) {
	tests := []struct {
		name string
		cfg  OpenAIConfig
	}{
		{"no base url", OpenAIConfig{Name: "custom", Model: "m"}},
		{"no model", OpenAIConfig{Name: "custom", BaseURL: "http://localhost:1234/v1"}},
		{"no key", OpenAIConfig{Name: "gateway", BaseURL: "https://gw/v1", Model: "m", RequireAPIKey: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenAICompatible(tt.cfg)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`},
		{"no json here", ""},
		{"} backwards {", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractJSON(tt.in), tt.in)
	}
}

func TestResponseSchema(t *testing.T) {
	catalog := fields.DefaultCatalog()
	schema := responseSchema(catalog.Filter([]string{"title", "colors"}))

	assert.Equal(t, []string{"title", "colors"}, schema.Required)
	assert.Equal(t, "array", string(schema.Properties["colors"].Type))
	assert.Equal(t, "string", string(schema.Properties["title"].Type))
	assert.Equal(t, false, schema.AdditionalProperties)
}
