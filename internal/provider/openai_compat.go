package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chriseon/relay/internal/models"
)

// Default endpoints for the three providers that speak the OpenAI
// chat-completions dialect.
const (
	OpenAIBaseURL   = "https://api.openai.com/v1"
	XAIBaseURL      = "https://api.x.ai/v1"
	DeepseekBaseURL = "https://api.deepseek.com/v1"
)

// OpenAICompat talks the OpenAI chat-completions wire dialect. It
// serves openai itself plus the providers that clone the API (xai,
// deepseek) with the same adapter under a different name and base URL.
type OpenAICompat struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewOpenAICompat creates an adapter for an OpenAI-compatible endpoint.
// client may be nil.
func NewOpenAICompat(name, baseURL string, client *http.Client) *OpenAICompat {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAICompat{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (o *OpenAICompat) Name() string { return o.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// Invoke implements Adapter. With a stream callback it uses SSE
// streaming and forwards content deltas as they arrive.
func (o *OpenAICompat) Invoke(ctx context.Context, req *Request, secret string, stream StreamFunc) (*Response, error) {
	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.Instructions},
			{Role: "user", Content: req.Input},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if stream != nil {
		body.Stream = true
		body.StreamOptions = &struct {
			IncludeUsage bool `json:"include_usage"`
		}{IncludeUsage: true}
	}

	resp, err := o.post(ctx, "/chat/completions", secret, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(o.name, resp)
	}

	if stream != nil {
		return o.readStream(resp.Body, stream)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", o.name, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s: response contained no choices", o.name)
	}

	result := &Response{Text: out.Choices[0].Message.Content}
	if out.Usage != nil {
		result.Usage = models.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		}
	}
	return result, nil
}

// readStream consumes an SSE response, forwarding content deltas and
// collecting the full text plus trailing usage.
func (o *OpenAICompat) readStream(body io.Reader, stream StreamFunc) (*Response, error) {
	var (
		text  strings.Builder
		usage models.Usage
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("%s: decode stream chunk: %w", o.name, err)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			text.WriteString(chunk.Choices[0].Delta.Content)
			stream(chunk.Choices[0].Delta.Content)
		}
		if chunk.Usage != nil {
			usage = models.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", o.name, err)
	}

	return &Response{Text: text.String(), Usage: usage}, nil
}

func (o *OpenAICompat) post(ctx context.Context, path, secret string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", o.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", o.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+secret)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.name, err)
	}
	return resp, nil
}

// apiError reads a non-200 response into a bounded error message.
func apiError(name string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("%s: api status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
}

var _ Adapter = (*OpenAICompat)(nil)
