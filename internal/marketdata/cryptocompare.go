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

// CryptoCompare is the second optional, free §6.2 source — its free tier
// covers quotes and hourly/daily history but not listings/global metrics,
// so those operations return ErrUnsupported and the chain advances.
type CryptoCompare struct {
	client  *http.Client
	baseURL string
	apiKey  string // optional; unauthenticated requests are rate-limited but work
}

// NewCryptoCompare constructs a CryptoCompare adapter. apiKey may be empty.
func NewCryptoCompare(apiKey string) *CryptoCompare {
	return &CryptoCompare{
		client:  &http.Client{Timeout: httpTimeout},
		baseURL: "https://min-api.cryptocompare.com/data",
		apiKey:  apiKey,
	}
}

func (c *CryptoCompare) Name() string             { return "cryptocompare" }
func (c *CryptoCompare) Tier() types.ProviderTier { return types.TierOptional }
func (c *CryptoCompare) IsFree() bool             { return true }

func (c *CryptoCompare) get(ctx context.Context, path string, query url.Values, dest any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("authorization", "Apikey "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cryptocompare: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *CryptoCompare) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	q := url.Values{"fsyms": {strings.ToUpper(symbol)}, "tsyms": {"USD"}}
	var full struct {
		Raw map[string]map[string]struct {
			Price            float64 `json:"PRICE"`
			Volume24hTo      float64 `json:"VOLUME24HOURTO"`
			MktCap           float64 `json:"MKTCAP"`
			Change24hPercent float64 `json:"CHANGEPCT24HOUR"`
			LastUpdate       int64   `json:"LASTUPDATE"`
		} `json:"RAW"`
	}
	if err := c.get(ctx, "/pricemultifull", q, &full); err != nil {
		return types.Quote{}, err
	}
	entry, ok := full.Raw[strings.ToUpper(symbol)]["USD"]
	if !ok {
		return types.Quote{}, fmt.Errorf("cryptocompare: no data for %s", symbol)
	}
	return types.Quote{
		Price:       decimal.NewFromFloat(entry.Price),
		Change24h:   decimal.NewFromFloat(entry.Change24hPercent),
		Volume24h:   decimal.NewFromFloat(entry.Volume24hTo),
		MarketCap:   decimal.NewFromFloat(entry.MktCap),
		LastUpdated: time.Unix(entry.LastUpdate, 0),
	}, nil
}

func (c *CryptoCompare) GetHistoricalQuotes(ctx context.Context, symbol string, tStart, tEnd time.Time, interval Interval) ([]types.HistoricalPoint, error) {
	path := "/v2/histoday"
	if interval == IntervalHourly {
		path = "/v2/histohour"
	}
	limit := int(tEnd.Sub(tStart).Hours())
	if interval != IntervalHourly {
		limit = int(tEnd.Sub(tStart).Hours() / 24)
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 2000 {
		limit = 2000
	}

	var raw struct {
		Data struct {
			Data []struct {
				Time       int64   `json:"time"`
				Close      float64 `json:"close"`
				VolumeTo   float64 `json:"volumeto"`
			} `json:"data"`
		} `json:"Data"`
	}
	q := url.Values{
		"fsym":  {strings.ToUpper(symbol)},
		"tsym":  {"USD"},
		"limit": {fmt.Sprintf("%d", limit)},
		"toTs":  {fmt.Sprintf("%d", tEnd.Unix())},
	}
	if err := c.get(ctx, path, q, &raw); err != nil {
		return nil, err
	}
	out := make([]types.HistoricalPoint, 0, len(raw.Data.Data))
	for _, d := range raw.Data.Data {
		out = append(out, types.HistoricalPoint{
			Timestamp: time.Unix(d.Time, 0),
			Price:     decimal.NewFromFloat(d.Close),
			Volume:    decimal.NewFromFloat(d.VolumeTo),
		})
	}
	return out, nil
}

func (c *CryptoCompare) GetTrending(ctx context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

func (c *CryptoCompare) GetGainersLosers(ctx context.Context) ([]types.Listing, []types.Listing, error) {
	return nil, nil, ErrUnsupported
}

func (c *CryptoCompare) GetListings(ctx context.Context, limit, start int) ([]types.Listing, error) {
	return nil, ErrUnsupported
}

func (c *CryptoCompare) GetGlobalMetrics(ctx context.Context) (types.GlobalMetrics, error) {
	return types.GlobalMetrics{}, ErrUnsupported
}

func (c *CryptoCompare) GetMetadata(ctx context.Context, symbol string) (types.Metadata, error) {
	var raw struct {
		Data map[string]struct {
			FullName string `json:"FullName"`
		} `json:"Data"`
	}
	if err := c.get(ctx, "/all/coinlist", url.Values{"fsym": {strings.ToUpper(symbol)}}, &raw); err != nil {
		return types.Metadata{}, err
	}
	entry, ok := raw.Data[strings.ToUpper(symbol)]
	if !ok {
		return types.Metadata{}, fmt.Errorf("cryptocompare: no metadata for %s", symbol)
	}
	return types.Metadata{Description: entry.FullName}, nil
}

func (c *CryptoCompare) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	var raw map[string]float64
	q := url.Values{"fsym": {strings.ToUpper(from)}, "tsyms": {strings.ToUpper(to)}}
	if err := c.get(ctx, "/price", q, &raw); err != nil {
		return decimal.Zero, err
	}
	rate, ok := raw[strings.ToUpper(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("cryptocompare: no rate for %s", to)
	}
	return amount.Mul(decimal.NewFromFloat(rate)), nil
}
