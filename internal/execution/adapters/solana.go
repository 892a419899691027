// Package adapters provides venue adapters implementing execution.Adapter.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
	"github.com/atlas-desktop/nova-trader/pkg/utils"
)

// JupiterQuote is the subset of a Jupiter aggregator quote response this
// adapter needs.
type JupiterQuote struct {
	InAmount  string `json:"inAmount"`
	OutAmount string `json:"outAmount"`
}

// SolanaConfig configures the Solana swap adapter.
type SolanaConfig struct {
	JupiterURL  string
	SlippageBPS int
	HTTPClient  *http.Client
}

// SolanaAdapter prices buys/sells from Jupiter aggregator quotes. It does
// not build, sign or send a swap transaction.
type SolanaAdapter struct {
	logger *zap.Logger
	config SolanaConfig
	client *http.Client
}

// NewSolanaAdapter constructs a SolanaAdapter.
func NewSolanaAdapter(logger *zap.Logger, config SolanaConfig) *SolanaAdapter {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if config.SlippageBPS <= 0 {
		config.SlippageBPS = 100
	}
	return &SolanaAdapter{logger: logger, config: config, client: client}
}

// Name identifies the adapter for Executor registration.
func (s *SolanaAdapter) Name() string { return string(types.PlatformPumpFun) }

// PlaceOrder fetches a Jupiter quote for order.TokenAddress and reports
// inAmount/outAmount as the fill price with a locally generated trade ID;
// no swap is executed.
func (s *SolanaAdapter) PlaceOrder(ctx context.Context, order *types.Trade) (decimal.Decimal, string, error) {
	quote, err := s.fetchQuote(ctx, order)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("solana adapter: quote failed: %w", err)
	}

	outAmount, err := decimal.NewFromString(quote.OutAmount)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("solana adapter: bad quote amount: %w", err)
	}
	inAmount, err := decimal.NewFromString(quote.InAmount)
	if err != nil || inAmount.IsZero() {
		return decimal.Zero, "", fmt.Errorf("solana adapter: bad quote amount: %w", err)
	}

	fillPrice := inAmount.Div(outAmount)
	return fillPrice, utils.GenerateTradeID(), nil
}

// GetPrice fetches a current quote without executing a swap.
func (s *SolanaAdapter) GetPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	quote, err := s.fetchQuote(ctx, &types.Trade{TokenAddress: tokenAddress, Kind: types.OrderSideBuy, Amount: decimal.NewFromFloat(0.01)})
	if err != nil {
		return decimal.Zero, err
	}
	outAmount, err := decimal.NewFromString(quote.OutAmount)
	if err != nil || outAmount.IsZero() {
		return decimal.Zero, fmt.Errorf("solana adapter: bad quote amount")
	}
	inAmount, err := decimal.NewFromString(quote.InAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("solana adapter: bad quote amount: %w", err)
	}
	return inAmount.Div(outAmount), nil
}

func (s *SolanaAdapter) fetchQuote(ctx context.Context, order *types.Trade) (*JupiterQuote, error) {
	lamports := order.Amount.Mul(decimal.NewFromInt(1_000_000_000)).IntPart()
	url := fmt.Sprintf("%s/quote?outputMint=%s&amount=%d&slippageBps=%s",
		s.config.JupiterURL, order.TokenAddress, lamports, strconv.Itoa(s.config.SlippageBPS))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}

	var quote JupiterQuote
	if err := json.Unmarshal(buf.Bytes(), &quote); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	return &quote, nil
}
