package mlcache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/atlas-desktop/nova-trader/internal/mlcache"
)

// requires a reachable redis instance; set NOVA_TEST_REDIS_URL to run it.
func TestSetGetRoundTrip(t *testing.T) {
	url := os.Getenv("NOVA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("NOVA_TEST_REDIS_URL not set, skipping redis integration test")
	}

	cache, err := mlcache.New(url)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.Ping(ctx); err != nil {
		t.Fatalf("redis not reachable: %v", err)
	}

	type prediction struct {
		Symbol string  `json:"symbol"`
		Value  float64 `json:"value"`
	}

	want := prediction{Symbol: "SOL", Value: 142.5}
	if err := cache.Set(ctx, mlcache.KindPrediction, "sol-fingerprint", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got prediction
	if err := cache.Get(ctx, mlcache.KindPrediction, "sol-fingerprint", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestGetMissReportsIsMiss(t *testing.T) {
	url := os.Getenv("NOVA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("NOVA_TEST_REDIS_URL not set, skipping redis integration test")
	}

	cache, err := mlcache.New(url)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	var dest struct{}
	err = cache.Get(ctx, mlcache.KindSentiment, "never-set", &dest)
	if !mlcache.IsMiss(err) {
		t.Fatalf("expected a cache-miss error, got %v", err)
	}
}
