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

// CoinGecko is the optional, free §6.2 source — no API key required, so it
// is a fallback rather than the chain's primary (§4.1 "free
// tier... announced via on_switch, never used as primary by default").
type CoinGecko struct {
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs a CoinGecko adapter against the public API.
func NewCoinGecko() *CoinGecko {
	return &CoinGecko{
		client:  &http.Client{Timeout: httpTimeout},
		baseURL: "https://api.coingecko.com/api/v3",
	}
}

func (c *CoinGecko) Name() string            { return "coingecko" }
func (c *CoinGecko) Tier() types.ProviderTier { return types.TierOptional }
func (c *CoinGecko) IsFree() bool             { return true }

// geckoID maps a ticker symbol to CoinGecko's slug ID scheme for the small
// set of assets this platform actually trades; unknown symbols fall through
// to a lowercase guess, which CoinGecko will 404 on and the chain will then
// advance past.
func geckoID(symbol string) string {
	known := map[string]string{
		"BTC":  "bitcoin",
		"ETH":  "ethereum",
		"SOL":  "solana",
		"USDC": "usd-coin",
		"USDT": "tether",
	}
	if id, ok := known[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

func (c *CoinGecko) get(ctx context.Context, path string, query url.Values, dest any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coingecko: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *CoinGecko) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	var raw map[string]map[string]float64
	q := url.Values{
		"ids":                  {geckoID(symbol)},
		"vs_currencies":        {"usd"},
		"include_market_cap":   {"true"},
		"include_24hr_vol":     {"true"},
		"include_24hr_change":  {"true"},
		"include_last_updated_at": {"true"},
	}
	if err := c.get(ctx, "/simple/price", q, &raw); err != nil {
		return types.Quote{}, err
	}
	entry, ok := raw[geckoID(symbol)]
	if !ok {
		return types.Quote{}, fmt.Errorf("coingecko: no data for %s", symbol)
	}
	lastUpdated := time.Now()
	if ts, ok := entry["last_updated_at"]; ok {
		lastUpdated = time.Unix(int64(ts), 0)
	}
	return types.Quote{
		Price:       decimal.NewFromFloat(entry["usd"]),
		Change24h:   decimal.NewFromFloat(entry["usd_24h_change"]),
		Volume24h:   decimal.NewFromFloat(entry["usd_24h_vol"]),
		MarketCap:   decimal.NewFromFloat(entry["usd_market_cap"]),
		LastUpdated: lastUpdated,
	}, nil
}

func (c *CoinGecko) GetListings(ctx context.Context, limit, start int) ([]types.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	page := start/limit + 1
	var raw []struct {
		Symbol                string  `json:"symbol"`
		Name                  string  `json:"name"`
		MarketCapRank         int     `json:"market_cap_rank"`
		CurrentPrice          float64 `json:"current_price"`
		MarketCap             float64 `json:"market_cap"`
		TotalVolume           float64 `json:"total_volume"`
		PriceChangePercentage24h float64 `json:"price_change_percentage_24h"`
	}
	q := url.Values{
		"vs_currency": {"usd"},
		"order":       {"market_cap_desc"},
		"per_page":    {fmt.Sprintf("%d", limit)},
		"page":        {fmt.Sprintf("%d", page)},
	}
	if err := c.get(ctx, "/coins/markets", q, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Listing, 0, len(raw))
	for _, r := range raw {
		out = append(out, types.Listing{
			Symbol: strings.ToUpper(r.Symbol),
			Name:   r.Name,
			Rank:   r.MarketCapRank,
			Quote: types.Quote{
				Price:       decimal.NewFromFloat(r.CurrentPrice),
				Change24h:   decimal.NewFromFloat(r.PriceChangePercentage24h),
				Volume24h:   decimal.NewFromFloat(r.TotalVolume),
				MarketCap:   decimal.NewFromFloat(r.MarketCap),
				LastUpdated: time.Now(),
			},
		})
	}
	return out, nil
}

func (c *CoinGecko) GetHistoricalQuotes(ctx context.Context, symbol string, tStart, tEnd time.Time, interval Interval) ([]types.HistoricalPoint, error) {
	days := int(tEnd.Sub(tStart).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	var raw struct {
		Prices       [][2]float64 `json:"prices"`
		TotalVolumes [][2]float64 `json:"total_volumes"`
	}
	q := url.Values{
		"vs_currency": {"usd"},
		"days":        {fmt.Sprintf("%d", days)},
	}
	if err := c.get(ctx, "/coins/"+geckoID(symbol)+"/market_chart", q, &raw); err != nil {
		return nil, err
	}
	out := make([]types.HistoricalPoint, 0, len(raw.Prices))
	for i, p := range raw.Prices {
		volume := 0.0
		if i < len(raw.TotalVolumes) {
			volume = raw.TotalVolumes[i][1]
		}
		out = append(out, types.HistoricalPoint{
			Timestamp: time.UnixMilli(int64(p[0])),
			Price:     decimal.NewFromFloat(p[1]),
			Volume:    decimal.NewFromFloat(volume),
		})
	}
	return out, nil
}

func (c *CoinGecko) GetTrending(ctx context.Context) ([]string, error) {
	var raw struct {
		Coins []struct {
			Item struct {
				Symbol string `json:"symbol"`
			} `json:"item"`
		} `json:"coins"`
	}
	if err := c.get(ctx, "/search/trending", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw.Coins))
	for _, c := range raw.Coins {
		out = append(out, strings.ToUpper(c.Item.Symbol))
	}
	return out, nil
}

// GetGainersLosers is not exposed by CoinGecko's free tier; callers fall
// through to the next source in the chain.
func (c *CoinGecko) GetGainersLosers(ctx context.Context) ([]types.Listing, []types.Listing, error) {
	return nil, nil, ErrUnsupported
}

func (c *CoinGecko) GetGlobalMetrics(ctx context.Context) (types.GlobalMetrics, error) {
	var raw struct {
		Data struct {
			ActiveCryptocurrencies int                `json:"active_cryptocurrencies"`
			TotalMarketCap         map[string]float64 `json:"total_market_cap"`
			TotalVolume            map[string]float64 `json:"total_volume"`
			MarketCapPercentage    map[string]float64 `json:"market_cap_percentage"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/global", nil, &raw); err != nil {
		return types.GlobalMetrics{}, err
	}
	return types.GlobalMetrics{
		Quote: types.Quote{
			MarketCap:   decimal.NewFromFloat(raw.Data.TotalMarketCap["usd"]),
			Volume24h:   decimal.NewFromFloat(raw.Data.TotalVolume["usd"]),
			LastUpdated: time.Now(),
		},
		BTCDominance:           decimal.NewFromFloat(raw.Data.MarketCapPercentage["btc"]),
		ETHDominance:           decimal.NewFromFloat(raw.Data.MarketCapPercentage["eth"]),
		ActiveCryptocurrencies: raw.Data.ActiveCryptocurrencies,
	}, nil
}

func (c *CoinGecko) GetMetadata(ctx context.Context, symbol string) (types.Metadata, error) {
	var raw struct {
		Description struct {
			En string `json:"en"`
		} `json:"description"`
		Links struct {
			Homepage []string `json:"homepage"`
		} `json:"links"`
	}
	if err := c.get(ctx, "/coins/"+geckoID(symbol), url.Values{"localization": {"false"}, "tickers": {"false"}, "market_data": {"false"}}, &raw); err != nil {
		return types.Metadata{}, err
	}
	return types.Metadata{
		Description: raw.Description.En,
		URLs:        map[string][]string{"homepage": raw.Links.Homepage},
	}, nil
}

func (c *CoinGecko) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	fromQuote, err := c.GetQuote(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	if strings.EqualFold(to, "usd") {
		return amount.Mul(fromQuote.Price), nil
	}
	toQuote, err := c.GetQuote(ctx, to)
	if err != nil {
		return decimal.Zero, err
	}
	if !toQuote.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("coingecko: zero price for %s", to)
	}
	return amount.Mul(fromQuote.Price).Div(toQuote.Price), nil
}
