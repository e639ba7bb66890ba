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

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
)

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Client  HTTPClient
}

// AnthropicProvider talks to the Anthropic messages API. The stable part of
// the prompt (instructions plus knowledge) is marked as a cache breakpoint.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	client  HTTPClient
}

func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &AnthropicProvider{apiKey: cfg.APIKey, baseURL: base, client: client}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) SupportsCaching() bool { return true }

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicTextBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string               `json:"model"`
	MaxTokens int                  `json:"max_tokens"`
	System    []anthropicTextBlock `json:"system,omitempty"`
	Messages  []anthropicMessage   `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	var system []anthropicTextBlock
	if s := strings.TrimSpace(req.System); s != "" {
		system = append(system, anthropicTextBlock{Type: "text", Text: s})
	}
	if kb := knowledgeBlock(req.Knowledge); kb != "" {
		system = append(system, anthropicTextBlock{Type: "text", Text: kb})
	}
	if len(system) > 0 {
		system[len(system)-1].CacheControl = &anthropicCacheControl{Type: "ephemeral"}
	}

	messages := make([]anthropicMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, anthropicMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, anthropicMessage{Role: "user", Content: req.Message})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	body, err := json.Marshal(anthropicRequest{Model: req.Model, MaxTokens: maxTokens, System: system, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: apiErrorMessage(raw)}
	}

	var out anthropicResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &UpstreamError{Provider: p.Name(), Message: "invalid response body", Err: err}
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	res := &Result{Text: text.String(), Model: out.Model}
	if u := out.Usage; u != nil && (u.InputTokens > 0 || u.OutputTokens > 0 || u.CacheReadInputTokens > 0) {
		// input_tokens excludes cache reads and writes; the billable input is their sum.
		res.Usage = &pricing.Usage{
			InputTokens:       u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens,
			OutputTokens:      u.OutputTokens,
			CachedInputTokens: u.CacheReadInputTokens,
		}
	}
	return res, nil
}
