package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMockAdapter())

	a, err := r.Lookup("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", a.Name())

	_, err = r.Lookup("claude")
	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.ElementsMatch(t, []string{"mock"}, r.Names())
}

func TestMockAdapterStreamsChunksInOrder(t *testing.T) {
	m := &MockAdapter{Reply: "abcdefghij", ChunkSize: 3}

	var chunks []string
	resp, err := m.Invoke(context.Background(), &Request{Model: "m", Input: "q"}, "", func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", resp.Text)
	assert.Equal(t, []string{"abc", "def", "ghi", "j"}, chunks)
	assert.Equal(t, "abcdefghij", strings.Join(chunks, ""))
}

func TestOpenAICompatInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, 900, req.MaxTokens)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello world"}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 4},
		})
	}))
	defer srv.Close()

	a := NewOpenAICompat("openai", srv.URL, srv.Client())
	resp, err := a.Invoke(context.Background(), &Request{
		Model:        "gpt-4o-mini",
		Instructions: "be helpful",
		Input:        "hi",
		MaxTokens:    900,
	}, "sk-test", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Text)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
}

func TestOpenAICompatStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "lo ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":3}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	a := NewOpenAICompat("xai", srv.URL, srv.Client())
	var chunks []string
	resp, err := a.Invoke(context.Background(), &Request{Model: "grok-3", Input: "hi"}, "sk", func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Text)
	assert.Equal(t, []string{"Hel", "lo ", "world"}, chunks)
	assert.Equal(t, 7, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestOpenAICompatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	a := NewOpenAICompat("deepseek", srv.URL, srv.Client())
	_, err := a.Invoke(context.Background(), &Request{Model: "deepseek-chat", Input: "hi"}, "sk", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deepseek")
	assert.Contains(t, err.Error(), "429")
}

func TestAnthropicInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be helpful", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		// A zero MaxTokens request must still send a positive cap.
		assert.Greater(t, req.MaxTokens, 0)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "part one "},
				{"type": "tool_use", "name": "ignored"},
				{"type": "text", "text": "part two"},
			},
			"usage": map[string]any{"input_tokens": 9, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	a := NewAnthropic(srv.URL, srv.Client())
	resp, err := a.Invoke(context.Background(), &Request{
		Model:        "claude-sonnet-4-5",
		Instructions: "be helpful",
		Input:        "hi",
	}, "sk-ant", nil)
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Text)
	assert.Equal(t, 9, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
}

func TestGeminiInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "sk-gem", r.URL.Query().Get("key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		require.Len(t, req.Contents, 1)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "answer"}}}},
			},
			"usageMetadata": map[string]any{"promptTokenCount": 3, "candidatesTokenCount": 1},
		})
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, srv.Client())
	resp, err := g.Invoke(context.Background(), &Request{
		Model:        "gemini-2.0-flash",
		Instructions: "be helpful",
		Input:        "hi",
	}, "sk-gem", nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text)
	assert.Equal(t, 3, resp.Usage.InputTokens)
	assert.Equal(t, 1, resp.Usage.OutputTokens)
}
