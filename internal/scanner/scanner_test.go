package scanner_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/atlas-desktop/nova-trader/internal/scanner"
	"github.com/atlas-desktop/nova-trader/internal/workers"
	"github.com/atlas-desktop/nova-trader/pkg/types"
)

type stubSource struct {
	name     string
	platform types.Platform
	tokens   []*types.Token
	err      error
}

func (s *stubSource) Name() string                  { return s.name }
func (s *stubSource) Platform() types.Platform       { return s.platform }
func (s *stubSource) Scan(ctx context.Context) ([]*types.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tokens, nil
}

func TestScanAllUnionsSourcesAndSkipsFailures(t *testing.T) {
	good := &stubSource{name: "a", platform: types.PlatformPumpFun, tokens: []*types.Token{{Address: "x"}}}
	bad := &stubSource{name: "b", platform: types.PlatformBonkFun, err: errors.New("boom")}

	s := scanner.New(zap.NewNop(), []scanner.Source{good, bad}, 1000)
	found := s.ScanAll(context.Background())

	if len(found) != 1 || found[0].Address != "x" {
		t.Fatalf("expected only the healthy source's token, got %+v", found)
	}
}

func TestScanAllRunsThroughAttachedPool(t *testing.T) {
	good := &stubSource{name: "a", platform: types.PlatformPumpFun, tokens: []*types.Token{{Address: "x"}}}
	bad := &stubSource{name: "b", platform: types.PlatformBonkFun, err: errors.New("boom")}

	s := scanner.New(zap.NewNop(), []scanner.Source{good, bad}, 1000)

	pool := workers.NewPool(zap.NewNop(), workers.DefaultPoolConfig("test"))
	pool.Start()
	defer pool.Stop()
	s.SetPool(pool)

	found := s.ScanAll(context.Background())
	if len(found) != 1 || found[0].Address != "x" {
		t.Fatalf("expected only the healthy source's token via the pool, got %+v", found)
	}

	stats := pool.Stats()
	if stats.TasksSubmitted != 2 {
		t.Fatalf("expected both sources submitted as pool tasks, got %d", stats.TasksSubmitted)
	}
}

func TestScanPlatformFiltersBySource(t *testing.T) {
	pump := &stubSource{name: "pump", platform: types.PlatformPumpFun, tokens: []*types.Token{{Address: "p1"}}}
	bonk := &stubSource{name: "bonk", platform: types.PlatformBonkFun, tokens: []*types.Token{{Address: "b1"}}}

	s := scanner.New(zap.NewNop(), []scanner.Source{pump, bonk}, 1000)
	found, err := s.ScanPlatform(context.Background(), types.PlatformBonkFun)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 1 || found[0].Address != "b1" {
		t.Fatalf("expected only bonk.fun tokens, got %+v", found)
	}
}

func TestScanPlatformWithNoSourceErrors(t *testing.T) {
	s := scanner.New(zap.NewNop(), nil, 1000)
	_, err := s.ScanPlatform(context.Background(), types.PlatformPumpFun)
	if err == nil {
		t.Fatal("expected an error when no source serves the platform")
	}
}
