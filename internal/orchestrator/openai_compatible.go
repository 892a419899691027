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

// OpenAICompatibleProvider talks to any chat-completions endpoint that
// follows OpenAI's request/response shape — OpenAI itself, Groq, a local
// vLLM/Ollama gateway. Fields mirror PerplexityProvider; tool schemas are
// forwarded verbatim per §4.1.
type OpenAICompatibleProvider struct {
	name       string
	tier       types.ProviderTier
	isFree     bool
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatibleProvider constructs an adapter for name against
// baseURL (e.g. "https://api.openai.com/v1" or a local gateway's address).
func NewOpenAICompatibleProvider(name, baseURL, apiKey, model string, tier types.ProviderTier, isFree bool) *OpenAICompatibleProvider {
	return &OpenAICompatibleProvider{
		name:       name,
		tier:       tier,
		isFree:     isFree,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAICompatibleProvider) Name() string             { return p.name }
func (p *OpenAICompatibleProvider) Tier() types.ProviderTier { return p.tier }
func (p *OpenAICompatibleProvider) IsFree() bool             { return p.isFree }

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

func (p *OpenAICompatibleProvider) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	wireMessages := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		wireMessages = append(wireMessages, map[string]string{"role": m.Role, "content": m.Content})
	}

	reqBody := map[string]any{
		"model":       p.model,
		"messages":    wireMessages,
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		reqBody["max_tokens"] = opts.MaxTokens
	}
	if len(opts.Tools) > 0 {
		tools := make([]openAITool, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			var tool openAITool
			tool.Type = "function"
			tool.Function.Name = t.Name
			tool.Function.Description = t.Description
			tool.Function.Parameters = t.Parameters
			tools = append(tools, tool)
		}
		reqBody["tools"] = tools
	}
	if opts.ToolChoice != "" {
		reqBody["tool_choice"] = opts.ToolChoice
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", p.name, resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty response", p.name)
	}
	choice := result.Choices[0]

	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		toolCalls = append(toolCalls, ToolCall{Name: tc.Function.Name, Arguments: args})
	}

	return &ChatResponse{
		Content:   choice.Message.Content,
		ToolCalls: toolCalls,
		Provider:  p.name,
		Tier:      p.tier,
		IsFree:    p.isFree,
	}, nil
}
