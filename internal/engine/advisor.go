package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/nova-trader/internal/orchestrator"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// ChatAdvisor implements AIAdvisor over C1's provider fallback orchestrator
// (§4.2.3 step 6), prompting whichever chat provider answers first for a
// structured AIDecision and parsing its reply as JSON.
type ChatAdvisor struct {
	chat *orchestrator.Orchestrator
}

// NewChatAdvisor wraps chat as an AIAdvisor.
func NewChatAdvisor(chat *orchestrator.Orchestrator) *ChatAdvisor {
	return &ChatAdvisor{chat: chat}
}

const advisorSystemPrompt = `You are a cryptocurrency launch risk analyst. Given a newly discovered token's on-chain and market factors, respond with ONLY a JSON object matching this shape, no prose:
{"decision":"strong_buy|buy|hold|avoid|strong_avoid","confidence":0.0,"risk_score_0_10":0.0,"red_flags":[],"green_flags":[],"suggested_buy_amount_sol":null,"suggested_stop_loss_pct":null,"suggested_take_profit_pct":null,"reasoning":""}`

// Analyze asks the orchestrator's chat providers for a structured decision
// about token, seeded with the risk score already computed by the §4.2.3
// step-5 heuristic.
func (a *ChatAdvisor) Analyze(ctx context.Context, token *types.Token, score decimal.Decimal) (*types.AIDecision, error) {
	prompt := fmt.Sprintf(
		"Token %s (%s) on %s: age=%ds liquidity=%s market_cap=%s holders=%d volume_24h=%s verified=%v heuristic_risk_score=%s",
		token.Symbol, token.Address, token.Platform,
		int(token.AgeSeconds(time.Now())),
		token.LiquiditySOL.String(), token.MarketCapSOL.String(), token.Holders,
		token.Volume24hSOL.String(), token.IsVerified, score.String(),
	)

	resp, err := a.chat.Chat(ctx, []orchestrator.Message{
		{Role: "system", Content: advisorSystemPrompt},
		{Role: "user", Content: prompt},
	}, orchestrator.ChatOptions{Temperature: 0.1, MaxTokens: 400}, nil)
	if err != nil {
		return nil, err
	}

	var wire struct {
		Decision               string           `json:"decision"`
		Confidence             float64          `json:"confidence"`
		RiskScore0To10         float64          `json:"risk_score_0_10"`
		RedFlags               []string         `json:"red_flags"`
		GreenFlags             []string         `json:"green_flags"`
		SuggestedBuyAmountSOL  *float64         `json:"suggested_buy_amount_sol"`
		SuggestedStopLossPct   *float64         `json:"suggested_stop_loss_pct"`
		SuggestedTakeProfitPct *float64         `json:"suggested_take_profit_pct"`
		Reasoning              string           `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &wire); err != nil {
		return nil, fmt.Errorf("engine: advisor response not valid JSON: %w", err)
	}

	decision := &types.AIDecision{
		Decision:       wire.Decision,
		Confidence:     decimal.NewFromFloat(wire.Confidence),
		RiskScore0To10: decimal.NewFromFloat(wire.RiskScore0To10),
		RedFlags:       wire.RedFlags,
		GreenFlags:     wire.GreenFlags,
		Reasoning:      wire.Reasoning,
	}
	if wire.SuggestedBuyAmountSOL != nil {
		v := decimal.NewFromFloat(*wire.SuggestedBuyAmountSOL)
		decision.SuggestedBuyAmountSOL = &v
	}
	if wire.SuggestedStopLossPct != nil {
		v := decimal.NewFromFloat(*wire.SuggestedStopLossPct)
		decision.SuggestedStopLossPct = &v
	}
	if wire.SuggestedTakeProfitPct != nil {
		v := decimal.NewFromFloat(*wire.SuggestedTakeProfitPct)
		decision.SuggestedTakeProfitPct = &v
	}
	return decision, nil
}
