package engine

import (
	"context"

	"github.com/atlas-desktop/nova-trader/internal/marketdata"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// MarketDataEnricher implements Enricher over a marketdata.Chain, the §4.2.3
// step-3 "enrich via the token metadata endpoint" suspension point. Missing
// upstream fields are left unset on the Token rather than zero-filled, per
// the spec's "missing fields remain null" rule.
type MarketDataEnricher struct {
	chain *marketdata.Chain
}

// NewMarketDataEnricher wraps chain as an Enricher.
func NewMarketDataEnricher(chain *marketdata.Chain) *MarketDataEnricher {
	return &MarketDataEnricher{chain: chain}
}

// Enrich fetches a quote for the token's symbol (if set) or address and
// copies whatever price/volume/market-cap fields the upstream reports onto
// token. A lookup failure is not propagated as an error — per §4.2.3,
// enrichment failure just leaves the corresponding fields null, and the
// admission filter treats an absent factor as "not evaluated" rather than
// "rejected".
func (e *MarketDataEnricher) Enrich(ctx context.Context, token *types.Token) error {
	symbol := token.Symbol
	if symbol == "" {
		symbol = token.Address
	}
	quote, err := e.chain.GetQuote(ctx, symbol)
	if err != nil {
		return nil
	}
	if !quote.MarketCap.IsZero() {
		token.SetMarketCap(quote.MarketCap)
	}
	if !quote.Volume24h.IsZero() {
		token.SetVolume24h(quote.Volume24h)
	}
	if !quote.Price.IsZero() {
		token.PriceUSD = quote.Price
	}
	return nil
}
