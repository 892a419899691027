package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// CoinMarketCap is the primary-tier §6.2 source, requiring an API key
// (§4.1: the primary tier never announces on_switch).
type CoinMarketCap struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewCoinMarketCap constructs a CoinMarketCap adapter. apiKey comes from the
// matching types.ProviderSpec.Credentials.
func NewCoinMarketCap(apiKey string) *CoinMarketCap {
	return &CoinMarketCap{
		client:  &http.Client{Timeout: httpTimeout},
		baseURL: "https://pro-api.coinmarketcap.com/v2",
		apiKey:  apiKey,
	}
}

func (c *CoinMarketCap) Name() string             { return "coinmarketcap" }
func (c *CoinMarketCap) Tier() types.ProviderTier { return types.TierPrimary }
func (c *CoinMarketCap) IsFree() bool             { return false }

func (c *CoinMarketCap) get(ctx context.Context, path string, query url.Values, dest any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coinmarketcap: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

type cmcUSDQuote struct {
	Price            float64 `json:"price"`
	Volume24h        float64 `json:"volume_24h"`
	PercentChange24h float64 `json:"percent_change_24h"`
	MarketCap        float64 `json:"market_cap"`
	LastUpdated      string  `json:"last_updated"`
}

func toQuote(q cmcUSDQuote) types.Quote {
	updated, _ := time.Parse(time.RFC3339, q.LastUpdated)
	return types.Quote{
		Price:       decimal.NewFromFloat(q.Price),
		Change24h:   decimal.NewFromFloat(q.PercentChange24h),
		Volume24h:   decimal.NewFromFloat(q.Volume24h),
		MarketCap:   decimal.NewFromFloat(q.MarketCap),
		LastUpdated: updated,
	}
}

func (c *CoinMarketCap) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	var raw struct {
		Data map[string][]struct {
			Quote map[string]cmcUSDQuote `json:"quote"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/cryptocurrency/quotes/latest", url.Values{"symbol": {strings.ToUpper(symbol)}}, &raw); err != nil {
		return types.Quote{}, err
	}
	entries, ok := raw.Data[strings.ToUpper(symbol)]
	if !ok || len(entries) == 0 {
		return types.Quote{}, fmt.Errorf("coinmarketcap: no data for %s", symbol)
	}
	usd, ok := entries[0].Quote["USD"]
	if !ok {
		return types.Quote{}, fmt.Errorf("coinmarketcap: no USD quote for %s", symbol)
	}
	return toQuote(usd), nil
}

func (c *CoinMarketCap) GetListings(ctx context.Context, limit, start int) ([]types.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	if start <= 0 {
		start = 1
	}
	var raw struct {
		Data []struct {
			Symbol       string                 `json:"symbol"`
			Name         string                 `json:"name"`
			CMCRank      int                    `json:"cmc_rank"`
			Quote        map[string]cmcUSDQuote `json:"quote"`
		} `json:"data"`
	}
	q := url.Values{"limit": {fmt.Sprintf("%d", limit)}, "start": {fmt.Sprintf("%d", start)}}
	if err := c.get(ctx, "/cryptocurrency/listings/latest", q, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Listing, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, types.Listing{
			Symbol: d.Symbol,
			Name:   d.Name,
			Rank:   d.CMCRank,
			Quote:  toQuote(d.Quote["USD"]),
		})
	}
	return out, nil
}

func (c *CoinMarketCap) GetHistoricalQuotes(ctx context.Context, symbol string, tStart, tEnd time.Time, interval Interval) ([]types.HistoricalPoint, error) {
	cmcInterval := "daily"
	switch interval {
	case IntervalHourly:
		cmcInterval = "hourly"
	case IntervalWeekly:
		cmcInterval = "weekly"
	}
	var raw struct {
		Data struct {
			Quotes []struct {
				Timestamp string                 `json:"timestamp"`
				Quote     map[string]cmcUSDQuote `json:"quote"`
			} `json:"quotes"`
		} `json:"data"`
	}
	q := url.Values{
		"symbol":        {strings.ToUpper(symbol)},
		"time_start":    {tStart.Format(time.RFC3339)},
		"time_end":      {tEnd.Format(time.RFC3339)},
		"interval":      {cmcInterval},
	}
	if err := c.get(ctx, "/cryptocurrency/quotes/historical", q, &raw); err != nil {
		return nil, err
	}
	out := make([]types.HistoricalPoint, 0, len(raw.Data.Quotes))
	for _, point := range raw.Data.Quotes {
		ts, _ := time.Parse(time.RFC3339, point.Timestamp)
		usd := point.Quote["USD"]
		out = append(out, types.HistoricalPoint{Timestamp: ts, Price: decimal.NewFromFloat(usd.Price), Volume: decimal.NewFromFloat(usd.Volume24h)})
	}
	return out, nil
}

func (c *CoinMarketCap) GetTrending(ctx context.Context) ([]string, error) {
	var raw struct {
		Data []struct {
			Symbol string `json:"symbol"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/cryptocurrency/trending/latest", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, d.Symbol)
	}
	return out, nil
}

func (c *CoinMarketCap) GetGainersLosers(ctx context.Context) ([]types.Listing, []types.Listing, error) {
	var raw struct {
		Data struct {
			Gainers []struct {
				Symbol string                 `json:"symbol"`
				Name   string                 `json:"name"`
				Quote  map[string]cmcUSDQuote `json:"quote"`
			} `json:"gainers"`
			Losers []struct {
				Symbol string                 `json:"symbol"`
				Name   string                 `json:"name"`
				Quote  map[string]cmcUSDQuote `json:"quote"`
			} `json:"losers"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/cryptocurrency/trending/gainers-losers", nil, &raw); err != nil {
		return nil, nil, err
	}
	gainers := make([]types.Listing, 0, len(raw.Data.Gainers))
	for _, g := range raw.Data.Gainers {
		gainers = append(gainers, types.Listing{Symbol: g.Symbol, Name: g.Name, Quote: toQuote(g.Quote["USD"])})
	}
	losers := make([]types.Listing, 0, len(raw.Data.Losers))
	for _, l := range raw.Data.Losers {
		losers = append(losers, types.Listing{Symbol: l.Symbol, Name: l.Name, Quote: toQuote(l.Quote["USD"])})
	}
	return gainers, losers, nil
}

func (c *CoinMarketCap) GetGlobalMetrics(ctx context.Context) (types.GlobalMetrics, error) {
	var raw struct {
		Data struct {
			ActiveCryptocurrencies int                    `json:"active_cryptocurrencies"`
			BTCDominance           float64                `json:"btc_dominance"`
			ETHDominance           float64                `json:"eth_dominance"`
			Quote                  map[string]cmcUSDQuote `json:"quote"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/global-metrics/quotes/latest", nil, &raw); err != nil {
		return types.GlobalMetrics{}, err
	}
	return types.GlobalMetrics{
		Quote:                  toQuote(raw.Data.Quote["USD"]),
		BTCDominance:           decimal.NewFromFloat(raw.Data.BTCDominance),
		ETHDominance:           decimal.NewFromFloat(raw.Data.ETHDominance),
		ActiveCryptocurrencies: raw.Data.ActiveCryptocurrencies,
	}, nil
}

func (c *CoinMarketCap) GetMetadata(ctx context.Context, symbol string) (types.Metadata, error) {
	var raw struct {
		Data map[string][]struct {
			Description string              `json:"description"`
			URLs        map[string][]string `json:"urls"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/cryptocurrency/info", url.Values{"symbol": {strings.ToUpper(symbol)}}, &raw); err != nil {
		return types.Metadata{}, err
	}
	entries, ok := raw.Data[strings.ToUpper(symbol)]
	if !ok || len(entries) == 0 {
		return types.Metadata{}, fmt.Errorf("coinmarketcap: no metadata for %s", symbol)
	}
	return types.Metadata{Description: entries[0].Description, URLs: entries[0].URLs}, nil
}

func (c *CoinMarketCap) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	var raw struct {
		Data struct {
			Quote map[string]struct {
				Price float64 `json:"price"`
			} `json:"quote"`
		} `json:"data"`
	}
	q := url.Values{
		"amount": {amount.String()},
		"symbol": {strings.ToUpper(from)},
		"convert": {strings.ToUpper(to)},
	}
	if err := c.get(ctx, "/tools/price-conversion", q, &raw); err != nil {
		return decimal.Zero, err
	}
	converted, ok := raw.Data.Quote[strings.ToUpper(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("coinmarketcap: no conversion to %s", to)
	}
	return decimal.NewFromFloat(converted.Price), nil
}
