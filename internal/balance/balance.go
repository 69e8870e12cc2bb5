package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gustavo/advisor-cli/internal/cache"
	"github.com/gustavo/advisor-cli/internal/chain"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/id"
	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/registry"
)

const cacheKind = "balance"

// Service reads native and payment-token balances for the connected
// account, behind the TTL cache. A refresh that fails leaves whatever was
// cached before in place, so transient node trouble degrades to old data
// instead of no data.
type Service struct {
	reader chain.Reader
	store  *cache.Store
	ttl    time.Duration
	now    func() time.Time
}

func New(reader chain.Reader, store *cache.Store, ttl time.Duration) *Service {
	return &Service{reader: reader, store: store, ttl: ttl, now: time.Now}
}

// Snapshot returns the balance snapshot for (account, chainID). With
// refresh set, the cache is bypassed on read but still updated on success.
func (s *Service) Snapshot(ctx context.Context, account string, chainID int64, refresh bool) (model.BalanceSnapshot, model.CacheStatus, []string, error) {
	key := cache.Key(cacheKind, chainID, account)

	var prior *model.BalanceSnapshot
	var priorAge time.Duration
	if s.store != nil {
		if res, err := s.store.Get(key); err == nil && res.Hit {
			var snap model.BalanceSnapshot
			if json.Unmarshal(res.Value, &snap) == nil {
				if !refresh && !res.Stale {
					return snap, model.CacheStatus{Status: "hit", AgeMS: res.Age.Milliseconds()}, nil, nil
				}
				prior = &snap
				priorAge = res.Age
			}
		}
	}

	snap, err := s.fetch(ctx, account, chainID)
	if err != nil {
		if prior != nil {
			warning := fmt.Sprintf("balance refresh failed, serving data captured %s ago: %v", priorAge.Round(time.Second), err)
			return *prior, model.CacheStatus{Status: "hit", AgeMS: priorAge.Milliseconds(), Stale: true}, []string{warning}, nil
		}
		return model.BalanceSnapshot{}, model.CacheStatus{Status: "miss"}, nil, err
	}

	if s.store != nil {
		if raw, marshalErr := json.Marshal(snap); marshalErr == nil {
			_ = s.store.Set(key, raw, s.ttl)
		}
	}
	return snap, model.CacheStatus{Status: "miss"}, nil, nil
}

func (s *Service) fetch(ctx context.Context, account string, chainID int64) (model.BalanceSnapshot, error) {
	native, err := s.reader.NativeBalance(ctx, account)
	if err != nil {
		return model.BalanceSnapshot{}, clierr.Wrap(clierr.CodeProviderUnavailable, "read native balance", err)
	}
	token, err := s.reader.BalanceOf(ctx, account)
	if err != nil {
		return model.BalanceSnapshot{}, clierr.Wrap(clierr.CodeProviderUnavailable, "read token balance", err)
	}

	nativeSymbol := "ETH"
	nativeDecimals := 18
	if params, ok := registry.Network(chainID); ok {
		nativeSymbol = params.NativeSymbol
		nativeDecimals = params.NativeDecimals
	}
	tokenSymbol := "ADV"
	tokenDecimals := 18
	if set, err := registry.Contracts(chainID); err == nil {
		tokenSymbol = set.TokenSymbol
		tokenDecimals = set.TokenDecimals
	}

	return model.BalanceSnapshot{
		Account:       account,
		ChainID:       id.ChainRef(chainID),
		NativeSymbol:  nativeSymbol,
		NativeBalance: id.FromBaseUnits(native, nativeDecimals),
		TokenSymbol:   tokenSymbol,
		TokenBalance:  id.FromBaseUnits(token, tokenDecimals),
		FetchedAt:     s.now().UTC().Format(time.RFC3339),
	}, nil
}
