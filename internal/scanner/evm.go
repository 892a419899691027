package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// EVMConfig configures an EVM launchpad scanner. It supplements spec.md's
// pump.fun/bonk.fun platform list with an EVM-chain launchpad; disabled
// unless a caller actually registers it as a Source (§4.2, non-normative
// addition).
type EVMConfig struct {
	RPCURL        string
	FactoryAddress string
	Platform      types.Platform
	HTTPClient    *http.Client
}

// EVMLaunchpadScanner polls an EVM chain's factory contract via JSON-RPC for
// newly created token pairs — "what addresses exist now", not
// transaction-level mempool detail.
type EVMLaunchpadScanner struct {
	logger *zap.Logger
	config EVMConfig
	client *http.Client
}

// NewEVMLaunchpadScanner constructs a scanner, rejecting a malformed
// factory address immediately rather than failing silently on every scan.
func NewEVMLaunchpadScanner(logger *zap.Logger, config EVMConfig) (*EVMLaunchpadScanner, error) {
	if !common.IsHexAddress(config.FactoryAddress) {
		return nil, fmt.Errorf("evm scanner: invalid factory address %q", config.FactoryAddress)
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EVMLaunchpadScanner{logger: logger, config: config, client: client}, nil
}

// Name identifies the scanner for logging/pacing.
func (s *EVMLaunchpadScanner) Name() string { return "evm:" + string(s.config.Platform) }

// Platform reports the launchpad this scanner serves.
func (s *EVMLaunchpadScanner) Platform() types.Platform { return s.config.Platform }

// Scan reads the factory's recent PairCreated-style logs via eth_getLogs
// and returns one Token per checksummed token address found.
func (s *EVMLaunchpadScanner) Scan(ctx context.Context) ([]*types.Token, error) {
	factory := common.HexToAddress(s.config.FactoryAddress)

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_getLogs",
		"params": []any{
			map[string]any{
				"address":   factory.Hex(),
				"fromBlock": "latest",
				"toBlock":   "latest",
			},
		},
	}

	resp, err := s.rpcCall(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp["result"].([]any)
	if !ok {
		return nil, fmt.Errorf("evm scanner: unexpected response shape")
	}

	now := time.Now()
	tokens := make([]*types.Token, 0, len(result))
	for _, raw := range result {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		addrStr, _ := entry["address"].(string)
		if !common.IsHexAddress(addrStr) {
			continue
		}
		tokens = append(tokens, &types.Token{
			Address:      common.HexToAddress(addrStr).Hex(),
			Platform:     s.config.Platform,
			DiscoveredAt: now,
			PriceUSD:     decimal.Zero,
		})
	}
	return tokens, nil
}

func (s *EVMLaunchpadScanner) rpcCall(ctx context.Context, request any) (map[string]any, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.RPCURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpc request failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}

	if errObj, ok := result["error"].(map[string]any); ok {
		return nil, fmt.Errorf("rpc error: %v", errObj["message"])
	}

	return result, nil
}
