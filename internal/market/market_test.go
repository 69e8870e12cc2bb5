package market

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gustavo/advisor-cli/internal/cache"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/feed"
	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/providers"
)

type fakePriceProvider struct {
	mu         sync.Mutex
	quotes     map[string]providers.Quote
	rateLimits map[string]int // symbol -> remaining 429 responses
	failAll    bool
	calls      int
}

func (f *fakePriceProvider) Quote(ctx context.Context, symbol string) (providers.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll {
		return providers.Quote{}, clierr.New(clierr.CodeUnavailable, "feed down")
	}
	if f.rateLimits[symbol] > 0 {
		f.rateLimits[symbol]--
		return providers.Quote{}, clierr.New(clierr.CodeRateLimited, "feed rate limited request")
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return providers.Quote{}, clierr.New(clierr.CodeUnavailable, "unknown symbol")
	}
	return q, nil
}

func (f *fakePriceProvider) History(ctx context.Context, symbol string, days int) (model.PriceHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll {
		return model.PriceHistory{}, clierr.New(clierr.CodeUnavailable, "feed down")
	}
	return model.PriceHistory{
		Symbol:   symbol,
		Interval: "1d",
		Points:   []model.PricePoint{{Timestamp: 1700000000, Price: 1.0}},
	}, nil
}

type fakeSentimentProvider struct {
	label string
	err   error
}

func (f *fakeSentimentProvider) Analyze(ctx context.Context, symbol string, price, change24h float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.label, nil
}

func fastPolicy() feed.Policy {
	return feed.Policy{
		MaxAttempts:      3,
		RetryDelay:       time.Millisecond,
		RateLimitDelay:   time.Millisecond,
		MaxRateLimitWait: time.Second,
	}
}

func openTestCache(t *testing.T) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := cache.Open(filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSnapshotClassifiesRisk(t *testing.T) {
	price := &fakePriceProvider{quotes: map[string]providers.Quote{
		"PEPE": {Price: 0.0000012, Change24h: 15.0},
		"WIF":  {Price: 2.5, Change24h: -3.0},
	}}
	svc := New(price, &fakeSentimentProvider{label: "Neutral"}, nil, 10*time.Minute, fastPolicy())

	result, err := svc.Snapshot(context.Background(), []string{"PEPE", "WIF"})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(result.Tokens) != 2 {
		t.Fatalf("tokens = %d, want 2", len(result.Tokens))
	}
	if result.Tokens[0].RiskLevel != "High" {
		t.Fatalf("PEPE risk = %s, want High (|change| > 10)", result.Tokens[0].RiskLevel)
	}
	if result.Tokens[1].RiskLevel != "Medium" {
		t.Fatalf("WIF risk = %s, want Medium", result.Tokens[1].RiskLevel)
	}
}

func TestRateLimitsDoNotConsumeAttempts(t *testing.T) {
	// Three consecutive 429s, then success on the fourth try. With only
	// three attempts in the budget this succeeds because rate limits are
	// waited out, not counted.
	price := &fakePriceProvider{
		quotes:     map[string]providers.Quote{"PEPE": {Price: 1.0, Change24h: 1.0}},
		rateLimits: map[string]int{"PEPE": 3},
	}
	svc := New(price, &fakeSentimentProvider{label: "Bullish"}, nil, 10*time.Minute, fastPolicy())

	result, err := svc.Snapshot(context.Background(), []string{"PEPE"})
	if err != nil {
		t.Fatalf("Snapshot failed despite healthy upstream: %v", err)
	}
	if result.Tokens[0].Price != 1.0 {
		t.Fatalf("unexpected token: %+v", result.Tokens[0])
	}
}

func TestSentimentFailureDegradesOneToken(t *testing.T) {
	price := &fakePriceProvider{quotes: map[string]providers.Quote{"BONK": {Price: 0.00002, Change24h: 2.0}}}
	svc := New(price, &fakeSentimentProvider{err: clierr.New(clierr.CodeUnavailable, "no choices")}, nil, 10*time.Minute, fastPolicy())

	result, err := svc.Snapshot(context.Background(), []string{"BONK"})
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if result.Tokens[0].Sentiment != "Unknown" {
		t.Fatalf("sentiment = %s, want Unknown", result.Tokens[0].Sentiment)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "BONK") {
		t.Fatalf("expected a sentiment warning, got %v", result.Warnings)
	}
}

func TestFreshCacheAvoidsFeedCalls(t *testing.T) {
	store := openTestCache(t)
	price := &fakePriceProvider{quotes: map[string]providers.Quote{"WIF": {Price: 2.0, Change24h: 1.0}}}
	svc := New(price, &fakeSentimentProvider{label: "Neutral"}, store, 10*time.Minute, fastPolicy())

	if _, err := svc.Snapshot(context.Background(), []string{"WIF"}); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	callsAfterFirst := price.calls

	result, err := svc.Snapshot(context.Background(), []string{"WIF"})
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if price.calls != callsAfterFirst {
		t.Fatalf("cached snapshot still hit the feed")
	}
	if result.CacheStatus.Status != "hit" {
		t.Fatalf("cache status = %s, want hit", result.CacheStatus.Status)
	}
}

func TestStaleEntryServedOnlyWhenFeedFails(t *testing.T) {
	store := openTestCache(t)
	price := &fakePriceProvider{quotes: map[string]providers.Quote{"WIF": {Price: 2.0, Change24h: 1.0}}}
	svc := New(price, &fakeSentimentProvider{label: "Neutral"}, store, 10*time.Minute, fastPolicy())

	if _, err := svc.Snapshot(context.Background(), []string{"WIF"}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	if err := store.Expire(symbolKey("WIF"), 11*time.Minute); err != nil {
		t.Fatalf("expire: %v", err)
	}

	price.failAll = true
	result, err := svc.Snapshot(context.Background(), []string{"WIF"})
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if result.Tokens[0].Price != 2.0 {
		t.Fatalf("unexpected stale token: %+v", result.Tokens[0])
	}
	if len(result.Warnings) == 0 || !strings.Contains(result.Warnings[0], "stale") {
		t.Fatalf("stale fallback not surfaced as warning: %v", result.Warnings)
	}
}

func TestSnapshotFailsWithoutAnyFallback(t *testing.T) {
	price := &fakePriceProvider{failAll: true}
	svc := New(price, &fakeSentimentProvider{label: "Neutral"}, nil, 10*time.Minute, fastPolicy())

	_, err := svc.Snapshot(context.Background(), []string{"PEPE"})
	if !clierr.Is(err, clierr.CodeFeedUnavailable) {
		t.Fatalf("expected feed-unavailable error, got %v", err)
	}
	var cliErr *clierr.Error
	if !errors.As(err, &cliErr) || cliErr.Cause == nil {
		t.Fatalf("exhaustion error should carry the last cause: %v", err)
	}
}

func TestHistoryIsCached(t *testing.T) {
	store := openTestCache(t)
	price := &fakePriceProvider{quotes: map[string]providers.Quote{}}
	svc := New(price, &fakeSentimentProvider{label: "Neutral"}, store, 10*time.Minute, fastPolicy())

	first, status, err := svc.History(context.Background(), "wif", 7)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if status.Status != "miss" {
		t.Fatalf("first status = %s, want miss", status.Status)
	}
	if first.Symbol != "wif" && first.Symbol != "WIF" {
		t.Fatalf("unexpected symbol: %q", first.Symbol)
	}

	callsAfterFirst := price.calls
	_, status, err = svc.History(context.Background(), "WIF", 7)
	if err != nil {
		t.Fatalf("second History failed: %v", err)
	}
	if status.Status != "hit" || price.calls != callsAfterFirst {
		t.Fatalf("second read not served from cache (status=%s calls=%d)", status.Status, price.calls)
	}
}
