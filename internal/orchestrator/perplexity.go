package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// PerplexityProvider is a chat-completion adapter for Perplexity's "online"
// models: the same bearer-auth POST and choices[0].message.content decode
// used for a fixed market-analyst prompt, generalized to arbitrary
// caller-supplied messages.
type PerplexityProvider struct {
	name       string
	tier       types.ProviderTier
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewPerplexityProvider constructs a Perplexity chat adapter. tier controls
// where it falls in the orchestrator's priority order.
func NewPerplexityProvider(apiKey, model string, tier types.ProviderTier) *PerplexityProvider {
	if model == "" {
		model = "llama-3.1-sonar-large-128k-online"
	}
	return &PerplexityProvider{
		name:       "perplexity",
		tier:       tier,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *PerplexityProvider) Name() string             { return p.name }
func (p *PerplexityProvider) Tier() types.ProviderTier { return p.tier }
func (p *PerplexityProvider) IsFree() bool             { return false }

func (p *PerplexityProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	wireMessages := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		wireMessages = append(wireMessages, map[string]string{"role": m.Role, "content": m.Content})
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 500
	}
	reqBody := map[string]any{
		"model":       p.model,
		"messages":    wireMessages,
		"temperature": opts.Temperature,
		"max_tokens":  maxTokens,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.perplexity.ai/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("perplexity: status %d", resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("perplexity: empty response")
	}

	// Perplexity's online models don't emit structured tool calls; per §4.1's
	// tie-break policy, report ToolCalls == nil rather than failing outright.
	return &ChatResponse{
		Content:  result.Choices[0].Message.Content,
		Provider: p.name,
		Tier:     p.tier,
		IsFree:   p.IsFree(),
	}, nil
}
