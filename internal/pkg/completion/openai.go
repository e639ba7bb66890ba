package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ManuelReschke/AgentHub/internal/pkg/pricing"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// HTTPClient is the subset of *http.Client used by providers.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Client  HTTPClient
}

// OpenAIProvider talks to an OpenAI compatible chat completions endpoint.
// OpenAI caches long prompt prefixes automatically and reports the cached
// part in usage.prompt_tokens_details.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	client  HTTPClient
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{apiKey: cfg.APIKey, baseURL: base, client: client}
}

func (p *OpenAIProvider) Name() string         { return "openai" }
func (p *OpenAIProvider) SupportsCaching() bool { return true }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	system := strings.TrimSpace(req.System)
	if kb := knowledgeBlock(req.Knowledge); kb != "" {
		if system != "" {
			system += "\n\n"
		}
		system += kb
	}

	messages := make([]openAIMessage, 0, len(req.History)+2)
	if system != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: system})
	}
	for _, m := range req.History {
		messages = append(messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Message})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	body, err := json.Marshal(openAIRequest{Model: req.Model, Messages: messages, MaxTokens: maxTokens})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: apiErrorMessage(raw)}
	}

	var out openAIResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &UpstreamError{Provider: p.Name(), Message: "invalid response body", Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, &UpstreamError{Provider: p.Name(), Message: "no choices returned"}
	}

	res := &Result{Text: out.Choices[0].Message.Content, Model: out.Model}
	if out.Usage != nil && (out.Usage.PromptTokens > 0 || out.Usage.CompletionTokens > 0) {
		res.Usage = &pricing.Usage{
			InputTokens:       out.Usage.PromptTokens,
			OutputTokens:      out.Usage.CompletionTokens,
			CachedInputTokens: out.Usage.PromptTokensDetails.CachedTokens,
		}
	}
	return res, nil
}

// apiErrorMessage extracts {"error":{"message":..}} from provider error bodies.
func apiErrorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
