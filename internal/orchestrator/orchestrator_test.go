package orchestrator_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/orchestrator"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

type stubProvider struct {
	name  string
	tier  types.ProviderTier
	free  bool
	err   error
	calls int
}

func (s *stubProvider) Name() string             { return s.name }
func (s *stubProvider) Tier() types.ProviderTier  { return s.tier }
func (s *stubProvider) IsFree() bool              { return s.free }
func (s *stubProvider) Chat(ctx context.Context, messages []orchestrator.Message, opts orchestrator.ChatOptions) (*orchestrator.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &orchestrator.ChatResponse{Content: "ok from " + s.name}, nil
}

func TestChatFallsBackToNextProviderOnFailure(t *testing.T) {
	primary := &stubProvider{name: "coinmarketcap", tier: types.TierPrimary, err: errors.New("quota exceeded")}
	fallback := &stubProvider{name: "coingecko", tier: types.TierOptional, free: true}

	orch := orchestrator.New(zap.NewNop(), orchestrator.DefaultConfig(), []orchestrator.Provider{primary, fallback})

	var switched string
	resp, err := orch.Chat(context.Background(), nil, orchestrator.ChatOptions{}, func(name string, tier types.ProviderTier, isFree bool) {
		switched = name
	})
	if err != nil {
		t.Fatalf("expected fallback success, got error: %v", err)
	}
	if resp.Provider != "coingecko" {
		t.Fatalf("expected response from coingecko, got %s", resp.Provider)
	}
	if switched != "coingecko" {
		t.Fatalf("expected on_switch invoked for coingecko, got %q", switched)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("expected exactly one attempt per provider, got primary=%d fallback=%d", primary.calls, fallback.calls)
	}

	stats, lastUsed := orch.Stats()
	if lastUsed != "coingecko" {
		t.Fatalf("expected last_used coingecko, got %s", lastUsed)
	}
	if stats["coinmarketcap"].Failures != 1 {
		t.Fatalf("expected one recorded failure for coinmarketcap")
	}
	if stats["coingecko"].Successes != 1 {
		t.Fatalf("expected one recorded success for coingecko")
	}
}

func TestChatReturnsAllProvidersFailed(t *testing.T) {
	p1 := &stubProvider{name: "a", tier: types.TierPrimary, err: errors.New("boom a")}
	p2 := &stubProvider{name: "b", tier: types.TierOptional, err: errors.New("boom b")}

	orch := orchestrator.New(zap.NewNop(), orchestrator.DefaultConfig(), []orchestrator.Provider{p1, p2})

	_, err := orch.Chat(context.Background(), nil, orchestrator.ChatOptions{}, nil)
	if !orchestrator.IsAllProvidersFailed(err) {
		t.Fatalf("expected AllProvidersFailedError, got %v", err)
	}
	var target *orchestrator.AllProvidersFailedError
	errors.As(err, &target)
	if len(target.Attempted) != 2 {
		t.Fatalf("expected both providers attempted, got %v", target.Attempted)
	}
	if target.LastErr.Error() != "boom b" {
		t.Fatalf("expected last error to be from the final provider tried, got %v", target.LastErr)
	}
}

func TestChatNoProvidersConfigured(t *testing.T) {
	orch := orchestrator.New(zap.NewNop(), orchestrator.DefaultConfig(), nil)
	_, err := orch.Chat(context.Background(), nil, orchestrator.ChatOptions{}, nil)
	if !errors.Is(err, orchestrator.ErrNoProvidersConfigured) {
		t.Fatalf("expected ErrNoProvidersConfigured, got %v", err)
	}
}

func TestHasProviderAndAvailableCount(t *testing.T) {
	p1 := &stubProvider{name: "a", tier: types.TierPrimary}
	orch := orchestrator.New(zap.NewNop(), orchestrator.DefaultConfig(), []orchestrator.Provider{p1})

	if !orch.HasProvider("a") {
		t.Fatal("expected HasProvider(a) to be true")
	}
	if orch.HasProvider("z") {
		t.Fatal("expected HasProvider(z) to be false")
	}
	if orch.AvailableCount() != 1 {
		t.Fatalf("expected AvailableCount 1, got %d", orch.AvailableCount())
	}
}
