package adapters

import (
	"context"
	"fmt"

	binance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// BinanceConfig configures the Binance adapter.
type BinanceConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// BinanceAdapter executes spot orders on Binance via the official
// go-binance/v2 client — the engine only needs market-order placement and
// a spot ticker, both of which the client library already exposes.
type BinanceAdapter struct {
	logger *zap.Logger
	client *binance.Client
}

// NewBinanceAdapter constructs a BinanceAdapter.
func NewBinanceAdapter(logger *zap.Logger, config BinanceConfig) *BinanceAdapter {
	if config.Testnet {
		binance.UseTestnet = true
	}
	return &BinanceAdapter{
		logger: logger,
		client: binance.NewClient(config.APIKey, config.APISecret),
	}
}

// Name identifies the adapter for Executor registration.
func (b *BinanceAdapter) Name() string { return "binance" }

// PlaceOrder submits a market order for order.TokenAddress treated as a
// Binance symbol (e.g. "SOLUSDT").
func (b *BinanceAdapter) PlaceOrder(ctx context.Context, order *types.Trade) (decimal.Decimal, string, error) {
	side := binance.SideTypeBuy
	if order.Kind == types.OrderSideSell {
		side = binance.SideTypeSell
	}

	res, err := b.client.NewCreateOrderService().
		Symbol(order.TokenAddress).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(order.Amount.String()).
		Do(ctx)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("binance adapter: place order: %w", err)
	}

	fillPrice := decimal.Zero
	if res.Price != "" {
		fillPrice, err = decimal.NewFromString(res.Price)
		if err != nil {
			return decimal.Zero, "", fmt.Errorf("binance adapter: parse fill price: %w", err)
		}
	}
	return fillPrice, fmt.Sprintf("%d", res.OrderID), nil
}

// GetPrice fetches the latest spot ticker price for symbol.
func (b *BinanceAdapter) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance adapter: get price: %w", err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("binance adapter: no price returned for %q", symbol)
	}
	return decimal.NewFromString(prices[0].Price)
}
