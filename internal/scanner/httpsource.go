package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// httpTimeout bounds the scrape endpoint call per §5's suspension-point
// discipline.
const httpTimeout = 15 * time.Second

// rawListing is one entry of a launchpad scrape endpoint's JSON array,
// matching §6.3's union-of-fields contract: every field but address and
// discovered_at is optional.
type rawListing struct {
	Address      string   `json:"address"`
	DiscoveredAt int64    `json:"discovered_at"`
	Name         *string  `json:"name,omitempty"`
	Symbol       *string  `json:"symbol,omitempty"`
	Liquidity    *float64 `json:"liquidity,omitempty"`
	MarketCap    *float64 `json:"market_cap,omitempty"`
	Holders      *int     `json:"holders,omitempty"`
	Volume24h    *float64 `json:"volume_24h,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	IsVerified   *bool    `json:"is_verified,omitempty"`
}

// HTTPSource implements scanner.Source by polling a launchpad's scrape
// endpoint (§6.3 "a scraping endpoint and an on-chain program indexer; the
// contract is the union of found addresses"). This covers the scrape half;
// an on-chain program indexer source can satisfy the same Source interface
// alongside it without the engine knowing the difference.
type HTTPSource struct {
	client   *http.Client
	name     string
	platform types.Platform
	url      string
}

// NewHTTPSource constructs a scrape-endpoint scanner source for platform.
func NewHTTPSource(name string, platform types.Platform, url string) *HTTPSource {
	return &HTTPSource{
		client:   &http.Client{Timeout: httpTimeout},
		name:     name,
		platform: platform,
		url:      url,
	}
}

func (s *HTTPSource) Name() string            { return s.name }
func (s *HTTPSource) Platform() types.Platform { return s.platform }

// Scan fetches the scrape endpoint and normalizes its entries into Tokens,
// carrying forward only the fields the upstream actually reported (§4.2.3's
// "optional-field" Token convention).
func (s *HTTPSource) Scan(ctx context.Context) ([]*types.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scanner: %s status %d", s.name, resp.StatusCode)
	}

	var raw []rawListing
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	tokens := make([]*types.Token, 0, len(raw))
	for _, r := range raw {
		token := &types.Token{
			Address:      r.Address,
			Platform:     s.platform,
			DiscoveredAt: time.Unix(r.DiscoveredAt, 0),
		}
		if r.Name != nil {
			token.Name = *r.Name
		}
		if r.Symbol != nil {
			token.Symbol = *r.Symbol
		}
		if r.Liquidity != nil {
			token.SetLiquidity(decimal.NewFromFloat(*r.Liquidity))
		}
		if r.MarketCap != nil {
			token.SetMarketCap(decimal.NewFromFloat(*r.MarketCap))
		}
		if r.Holders != nil {
			token.SetHolders(*r.Holders)
		}
		if r.Volume24h != nil {
			token.SetVolume24h(decimal.NewFromFloat(*r.Volume24h))
		}
		if r.Price != nil {
			token.PriceUSD = decimal.NewFromFloat(*r.Price)
		}
		if r.IsVerified != nil {
			token.SetVerified(*r.IsVerified)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}
