package orchestrator

import (
	"context"
	"time"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// Message is one turn of a chat-style conversation, provider-agnostic.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSchema describes a callable tool a provider may be offered, mirroring
// the JSON-schema shape most chat-completion APIs expect.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is one invocation a provider's response asked the caller to make.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ChatOptions carries the provider-agnostic knobs §4.1 requires be passed
// through verbatim where a given adapter supports them.
type ChatOptions struct {
	Temperature      float64
	MaxTokens        int
	Tools            []ToolSchema
	ToolChoice       string
	IncludeReasoning bool
}

// ChatResponse is the normalized reply, decorated with which provider served
// it before being handed back to the caller.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`

	Provider string              `json:"_provider"`
	Tier     types.ProviderTier  `json:"_tier"`
	IsFree   bool                `json:"_free"`
}

// Provider is a single chat-completion backend the orchestrator can fall
// back through. Adapters that cannot emit tool calls should return
// ToolCalls == nil and leave the "log a warning once per call" behavior to
// their own Chat implementation, per §4.1's tie-break policy.
type Provider interface {
	Name() string
	Tier() types.ProviderTier
	IsFree() bool
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)
}

// OnSwitch is invoked before an optional-tier provider is attempted, so the
// caller can surface a "falling back to a free provider" notice.
type OnSwitch func(name string, tier types.ProviderTier, isFree bool)

// Stats is the per-provider counter set exposed by Orchestrator.Stats.
type Stats struct {
	Successes int64     `json:"successes"`
	Failures  int64     `json:"failures"`
	LastUsed  time.Time `json:"lastUsed,omitempty"`
}
