package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/alerts"
	"github.com/atlas-desktop/nova-trader/internal/api"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

func TestHealthEndpointOK(t *testing.T) {
	server := api.NewServer(zap.NewNop(), types.DefaultServerConfig(), api.Dependencies{})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "healthy", body["status"])
}

func TestEngineStatusUnavailableWithoutDependency(t *testing.T) {
	server := api.NewServer(zap.NewNop(), types.DefaultServerConfig(), api.Dependencies{})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/engine/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAlertCRUDRoundTrip(t *testing.T) {
	mgr := alerts.New(zap.NewNop(), alerts.Dependencies{}, nil)
	defer mgr.Stop()

	server := api.NewServer(zap.NewNop(), types.DefaultServerConfig(), api.Dependencies{Alerts: mgr})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	body, err := json.Marshal(types.Alert{
		Type:      types.AlertTypePrice,
		Symbol:    "BTC",
		Op:        types.OpGreater,
		Threshold: decimal.NewFromInt(50000),
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/v1/alerts", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	listResp, err := http.Get(ts.URL + "/api/v1/alerts")
	require.NoError(t, err)
	defer listResp.Body.Close()

	var list []types.Alert
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Len(t, list, 1)
}
