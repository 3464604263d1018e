package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(status int, body any, seen *map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func newTestAnthropicProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(server.URL),
		option.WithMaxRetries(0),
	)
	return &AnthropicProvider{client: &client, model: "claude-haiku-4-5-20251001"}
}

func anthropicMessage(text, stop string) map[string]any {
	return map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 50, "output_tokens": 30},
	}
}

func TestAnthropicProvider(t *testing.T) {
	t.Run("free text", func(t *testing.T) {
		var seen map[string]any
		p := newTestAnthropicProvider(t, jsonHandler(http.StatusOK, anthropicMessage("Loops repeat work.", "end_turn"), &seen))

		resp, err := p.Generate(context.Background(), Request{
			System:    "You are a tutor.",
			Messages:  []Message{{Role: RoleUser, Content: "Explain loops."}, {Role: RoleAssistant, Content: "Sure."}},
			MaxTokens: 256,
		})
		require.NoError(t, err)
		assert.Equal(t, "Loops repeat work.", resp.Text)
		assert.Equal(t, 80, resp.Usage.TotalTokens)
		assert.Equal(t, "end", resp.StopReason)

		msgs, _ := seen["messages"].([]any)
		assert.Len(t, msgs, 2)
	})

	t.Run("schema validated", func(t *testing.T) {
		p := newTestAnthropicProvider(t, jsonHandler(http.StatusOK, anthropicMessage(`{"name":"x"}`, "end_turn"), nil))
		_, err := p.Generate(context.Background(), Request{Schema: testSchema(), MaxTokens: 64})
		var inv *ErrInvalidResponse
		assert.ErrorAs(t, err, &inv)
	})

	t.Run("truncated structured output", func(t *testing.T) {
		p := newTestAnthropicProvider(t, jsonHandler(http.StatusOK, anthropicMessage(`{"name":`, "max_tokens"), nil))
		_, err := p.Generate(context.Background(), Request{Schema: testSchema(), MaxTokens: 4})
		var mt *ErrMaxTokensExceeded
		assert.ErrorAs(t, err, &mt)
	})

	errBody := map[string]any{"type": "error", "error": map[string]any{"type": "x", "message": "nope"}}

	t.Run("rate limit", func(t *testing.T) {
		p := newTestAnthropicProvider(t, jsonHandler(http.StatusTooManyRequests, errBody, nil))
		_, err := p.Generate(context.Background(), Request{MaxTokens: 10})
		var rl *ErrRateLimit
		assert.ErrorAs(t, err, &rl)
	})

	t.Run("server error", func(t *testing.T) {
		p := newTestAnthropicProvider(t, jsonHandler(http.StatusInternalServerError, errBody, nil))
		_, err := p.Generate(context.Background(), Request{MaxTokens: 10})
		var unavail *ErrProviderUnavailable
		assert.ErrorAs(t, err, &unavail)
	})
}

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := newOpenAIProviderRaw(OpenAIConfig{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)
	return p
}

func openaiCompletion(content, finish string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
	}
}

func TestOpenAIProvider(t *testing.T) {
	t.Run("structured output", func(t *testing.T) {
		var seen map[string]any
		p := newTestOpenAIProvider(t, jsonHandler(http.StatusOK, openaiCompletion(`{"name":"Ada","age":36}`, "stop"), &seen))

		resp, err := p.Generate(context.Background(), Request{
			System:    "sys",
			Messages:  UserMessage("go"),
			Schema:    testSchema(),
			MaxTokens: 256,
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Ada","age":36}`, string(resp.JSON()))
		assert.Equal(t, 65, resp.Usage.TotalTokens)

		format, _ := seen["response_format"].(map[string]any)
		assert.Equal(t, "json_schema", format["type"])
		msgs, _ := seen["messages"].([]any)
		assert.Len(t, msgs, 2, "system prompt is sent as the first message")
	})

	t.Run("rate limit", func(t *testing.T) {
		body := map[string]any{"error": map[string]any{"type": "tokens", "message": "slow down", "code": "rate_limit_exceeded"}}
		p := newTestOpenAIProvider(t, jsonHandler(http.StatusTooManyRequests, body, nil))
		_, err := p.Generate(context.Background(), Request{Messages: UserMessage("x"), MaxTokens: 10})
		var rl *ErrRateLimit
		assert.ErrorAs(t, err, &rl)
	})

	t.Run("no choices", func(t *testing.T) {
		_, err := openaiResponse(openai.ChatCompletionResponse{})
		var inv *ErrInvalidResponse
		assert.ErrorAs(t, err, &inv)
	})

	t.Run("friendly names", func(t *testing.T) {
		p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4o"})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", p.ModelID())

		_, err = NewOpenAIProvider(OpenAIConfig{Model: "gpt-4o"})
		assert.Error(t, err)
	})
}

func TestNewOpenRouterProvider(t *testing.T) {
	p, err := NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or", Model: "anthropic/claude-3-haiku"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3-haiku", p.ModelID(), "ids pass through without mapping")

	_, err = NewOpenRouterProvider(OpenRouterConfig{Model: "x"})
	assert.Error(t, err)

	_, err = NewOpenRouterProvider(OpenRouterConfig{APIKey: "sk-or"})
	assert.Error(t, err, "model is required")
}

func TestGeminiSchema(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":   map[string]any{"type": "string"},
			"kind":   map[string]any{"type": "string", "enum": []string{"a", "b"}},
			"scores": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
			"odd":    map[string]any{"type": "null"},
		},
		"required": []any{"name"},
	}

	s := geminiSchema(def)
	assert.EqualValues(t, "OBJECT", s.Type)
	require.Len(t, s.Properties, 4)
	assert.Equal(t, []string{"a", "b"}, s.Properties["kind"].Enum)
	assert.EqualValues(t, "INTEGER", s.Properties["scores"].Items.Type)
	assert.EqualValues(t, "STRING", s.Properties["odd"].Type, "unknown types fall back to string")
	assert.Equal(t, []string{"name"}, s.Required)
}

func TestResolveModel(t *testing.T) {
	assert.Equal(t, "claude-haiku-4-5-20251001", resolveModel("claude-haiku", anthropicModels))
	assert.Equal(t, "gemini-2.5-flash", resolveModel("gemini-flash", geminiModels))
	assert.Equal(t, "custom-id", resolveModel("custom-id", openaiModels))
}

func TestLookupCost(t *testing.T) {
	c := LookupCost("gpt-4o-mini")
	require.NotNil(t, c)
	assert.InDelta(t, 0.15+0.6, c.Cost(1_000_000, 1_000_000), 1e-9)

	assert.NotNil(t, LookupCost("claude-haiku"), "friendly names resolve")
	assert.NotNil(t, LookupCost("google/gemini-2.5-flash"), "gateway prefixes are stripped")
	assert.Nil(t, LookupCost("mystery-model"))
}
