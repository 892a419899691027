package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/pkg/types"
)

// SolanaProgramConfig configures a program-account indexer scan.
type SolanaProgramConfig struct {
	RPCURL     string
	ProgramID  string
	Platform   types.Platform
	HTTPClient *http.Client
}

// SolanaProgramScanner discovers newly-created accounts owned by a
// launchpad's bonding-curve program via getProgramAccounts polling, a
// one-shot poll rather than a persistent subscription, matching what
// §4.2.3 step 1 needs.
type SolanaProgramScanner struct {
	logger *zap.Logger
	config SolanaProgramConfig
	client *http.Client
}

// NewSolanaProgramScanner constructs a scanner for one program/platform.
func NewSolanaProgramScanner(logger *zap.Logger, config SolanaProgramConfig) *SolanaProgramScanner {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SolanaProgramScanner{logger: logger, config: config, client: client}
}

// Name identifies the scanner for logging/pacing.
func (s *SolanaProgramScanner) Name() string { return "solana:" + string(s.config.Platform) }

// Platform reports the launchpad this scanner serves.
func (s *SolanaProgramScanner) Platform() types.Platform { return s.config.Platform }

// Scan polls getProgramAccounts and maps each account into a freshly
// discovered Token. Enrichment (liquidity, market cap, holders, volume) is
// left unset here; §4.2.3 step 3 fills those in from a separate quote call.
func (s *SolanaProgramScanner) Scan(ctx context.Context) ([]*types.Token, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getProgramAccounts",
		"params": []any{
			s.config.ProgramID,
			map[string]any{
				"encoding":   "jsonParsed",
				"commitment": "confirmed",
			},
		},
	}

	resp, err := s.rpcCall(ctx, req)
	if err != nil {
		return nil, err
	}

	result, ok := resp["result"].([]any)
	if !ok {
		return nil, fmt.Errorf("solana scanner: unexpected response shape")
	}

	now := time.Now()
	tokens := make([]*types.Token, 0, len(result))
	for _, raw := range result {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		pubkey, _ := entry["pubkey"].(string)
		if pubkey == "" {
			continue
		}
		tokens = append(tokens, &types.Token{
			Address:      pubkey,
			Platform:     s.config.Platform,
			DiscoveredAt: now,
			PriceUSD:     decimal.Zero,
		})
	}
	return tokens, nil
}

// rpcCall issues a JSON-RPC POST request.
func (s *SolanaProgramScanner) rpcCall(ctx context.Context, request any) (map[string]any, error) {
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
