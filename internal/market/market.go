package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gustavo/advisor-cli/internal/cache"
	"github.com/gustavo/advisor-cli/internal/feed"
	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/providers"
)

const (
	riskHigh   = "High"
	riskMedium = "Medium"

	highRiskChangeThreshold = 10.0
)

// Service assembles meme token snapshots: spot quotes and sentiment per
// tracked symbol, each fetched independently under the feed retry policy
// and cached with a TTL. A sentiment failure degrades that one token, never
// the whole snapshot.
type Service struct {
	price     providers.PriceProvider
	sentiment providers.SentimentProvider
	store     *cache.Store
	ttl       time.Duration
	policy    feed.Policy
	now       func() time.Time
}

func New(price providers.PriceProvider, sentiment providers.SentimentProvider, store *cache.Store, ttl time.Duration, policy feed.Policy) *Service {
	return &Service{
		price:     price,
		sentiment: sentiment,
		store:     store,
		ttl:       ttl,
		policy:    policy,
		now:       time.Now,
	}
}

// SnapshotResult carries the tokens plus how the cache behaved, so the
// output layer can report hit/miss/stale without re-deriving it.
type SnapshotResult struct {
	Tokens      []model.MemeToken
	CacheStatus model.CacheStatus
	Warnings    []string
}

func symbolKey(symbol string) string {
	return "price|" + strings.ToUpper(symbol)
}

// Snapshot fetches every tracked symbol. Symbols are independent: one
// symbol exhausting its retries fails the snapshot, but a stale cached
// entry for it is preferred over failure and surfaced as a warning.
func (s *Service) Snapshot(ctx context.Context, symbols []string) (SnapshotResult, error) {
	result := SnapshotResult{CacheStatus: model.CacheStatus{Status: "miss"}}
	hits := 0

	for _, symbol := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(symbol))
		if sym == "" {
			continue
		}
		token, fromCache, warning, err := s.fetchSymbol(ctx, sym)
		if err != nil {
			return SnapshotResult{}, err
		}
		if fromCache {
			hits++
		}
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
		result.Tokens = append(result.Tokens, token)
	}

	switch {
	case len(result.Tokens) == 0:
	case hits == len(result.Tokens):
		result.CacheStatus.Status = "hit"
	case hits > 0:
		result.CacheStatus.Status = "partial"
	}
	return result, nil
}

func (s *Service) fetchSymbol(ctx context.Context, sym string) (model.MemeToken, bool, string, error) {
	key := symbolKey(sym)
	var cached *model.MemeToken
	if s.store != nil {
		if res, err := s.store.Get(key); err == nil && res.Hit {
			var token model.MemeToken
			if json.Unmarshal(res.Value, &token) == nil {
				if !res.Stale {
					return token, true, "", nil
				}
				cached = &token
			}
		}
	}

	quote, err := feed.FetchWithRetry(ctx, s.policy, func(ctx context.Context) (providers.Quote, error) {
		return s.price.Quote(ctx, sym)
	})
	if err != nil {
		if cached != nil {
			return *cached, true, fmt.Sprintf("price feed for %s failed, serving stale data: %v", sym, err), nil
		}
		return model.MemeToken{}, false, "", err
	}

	token := model.MemeToken{
		Name:      sym,
		Symbol:    sym,
		Price:     quote.Price,
		Change24h: quote.Change24h,
		RiskLevel: riskLevel(quote.Change24h),
		FetchedAt: s.now().UTC().Format(time.RFC3339),
	}

	warning := ""
	label, err := feed.FetchWithRetry(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.sentiment.Analyze(ctx, sym, quote.Price, quote.Change24h)
	})
	if err != nil {
		token.Sentiment = "Unknown"
		warning = fmt.Sprintf("sentiment feed for %s failed: %v", sym, err)
	} else {
		token.Sentiment = label
	}

	if s.store != nil {
		if raw, err := json.Marshal(token); err == nil {
			// Best effort; a failed cache write only costs the next read.
			_ = s.store.Set(key, raw, s.ttl)
		}
	}
	return token, false, warning, nil
}

// History returns cached-or-fetched daily price history for one symbol.
func (s *Service) History(ctx context.Context, symbol string, days int) (model.PriceHistory, model.CacheStatus, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	key := fmt.Sprintf("history|%s|%d", sym, days)

	if s.store != nil {
		if res, err := s.store.Get(key); err == nil && res.Hit && !res.Stale {
			var history model.PriceHistory
			if json.Unmarshal(res.Value, &history) == nil {
				return history, model.CacheStatus{Status: "hit", AgeMS: res.Age.Milliseconds()}, nil
			}
		}
	}

	history, err := feed.FetchWithRetry(ctx, s.policy, func(ctx context.Context) (model.PriceHistory, error) {
		return s.price.History(ctx, sym, days)
	})
	if err != nil {
		return model.PriceHistory{}, model.CacheStatus{Status: "miss"}, err
	}
	if s.store != nil {
		if raw, err := json.Marshal(history); err == nil {
			_ = s.store.Set(key, raw, s.ttl)
		}
	}
	return history, model.CacheStatus{Status: "miss"}, nil
}

func riskLevel(change24h float64) string {
	if math.Abs(change24h) > highRiskChangeThreshold {
		return riskHigh
	}
	return riskMedium
}
