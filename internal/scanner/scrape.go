package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// scrapeListing is the minimal shape expected from a launchpad's public
// "recent tokens" JSON endpoint.
type scrapeListing struct {
	Address      string  `json:"address"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	PriceUSD     float64 `json:"priceUsd"`
	LiquiditySOL float64 `json:"liquiditySol"`
}

// ScrapeConfig configures an HTTP scraping scanner.
type ScrapeConfig struct {
	URL        string
	Platform   types.Platform
	HTTPClient *http.Client
}

// ScrapeScanner discovers tokens by polling a launchpad's public listing
// endpoint directly, unioned with the chain-program-indexer scanners per
// §4.2.3 step 1 — the spec treats "scrape the launchpad site" and "index
// the program on-chain" as two equally valid discovery sources for the same
// platform.
type ScrapeScanner struct {
	logger *zap.Logger
	config ScrapeConfig
	client *http.Client
}

// NewScrapeScanner constructs a scanner polling config.URL.
func NewScrapeScanner(logger *zap.Logger, config ScrapeConfig) *ScrapeScanner {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ScrapeScanner{logger: logger, config: config, client: client}
}

// Name identifies the scanner for logging/pacing.
func (s *ScrapeScanner) Name() string { return "scrape:" + string(s.config.Platform) }

// Platform reports the launchpad this scanner serves.
func (s *ScrapeScanner) Platform() types.Platform { return s.config.Platform }

// Scan fetches and decodes the listing endpoint into Tokens.
func (s *ScrapeScanner) Scan(ctx context.Context) ([]*types.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build scrape request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape endpoint returned status %d", resp.StatusCode)
	}

	var listings []scrapeListing
	if err := json.NewDecoder(resp.Body).Decode(&listings); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}

	now := time.Now()
	tokens := make([]*types.Token, 0, len(listings))
	for _, l := range listings {
		if l.Address == "" {
			continue
		}
		token := &types.Token{
			Address:      l.Address,
			Platform:     s.config.Platform,
			DiscoveredAt: now,
			Name:         l.Name,
			Symbol:       l.Symbol,
			PriceUSD:     decimal.NewFromFloat(l.PriceUSD),
		}
		if l.LiquiditySOL != 0 {
			token.SetLiquidity(decimal.NewFromFloat(l.LiquiditySOL))
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}
