// Package marketdata implements the §6.2 market-data provider contract
// consumed by C2 (entry filters), C3 (agent observations), and C4 (alert
// evaluators): a normalized quote/history/listing surface fronted by a
// priority-ordered fallback chain, structured the same way C1's
// internal/orchestrator falls back across chat providers (§4.1), generalized
// here to a different external collaborator class.
package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// Interval names the historical-series granularities §6.2 enumerates.
type Interval string

const (
	IntervalHourly Interval = "hourly"
	IntervalDaily  Interval = "daily"
	IntervalWeekly Interval = "weekly"
)

// Source is one market-data collaborator's normalized contract (§6.2).
// Adapters that cannot serve a given operation return ErrUnsupported so the
// fallback chain advances rather than treating it as a hard failure.
type Source interface {
	Name() string
	Tier() types.ProviderTier
	IsFree() bool

	GetQuote(ctx context.Context, symbol string) (types.Quote, error)
	GetListings(ctx context.Context, limit, start int) ([]types.Listing, error)
	GetHistoricalQuotes(ctx context.Context, symbol string, tStart, tEnd time.Time, interval Interval) ([]types.HistoricalPoint, error)
	GetTrending(ctx context.Context) ([]string, error)
	GetGainersLosers(ctx context.Context) (gainers, losers []types.Listing, err error)
	GetGlobalMetrics(ctx context.Context) (types.GlobalMetrics, error)
	GetMetadata(ctx context.Context, symbol string) (types.Metadata, error)
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// httpTimeout bounds every adapter's outbound call per §5's "metadata/price
// ≈ 15 s" suspension-point default.
const httpTimeout = 15 * time.Second
