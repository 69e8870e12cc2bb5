package app

import (
	"github.com/spf13/cobra"

	"github.com/gustavo/advisor-cli/internal/balance"
	"github.com/gustavo/advisor-cli/internal/chain"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/feed"
	"github.com/gustavo/advisor-cli/internal/httpx"
	"github.com/gustavo/advisor-cli/internal/market"
	"github.com/gustavo/advisor-cli/internal/providers/cryptocompare"
	"github.com/gustavo/advisor-cli/internal/providers/sentiment"
	"github.com/gustavo/advisor-cli/internal/wallet"
)

func (s *runtimeState) balanceService(reader chain.Reader) *balance.Service {
	return balance.New(reader, s.openCache(), s.settings.CacheTTL)
}

func (s *runtimeState) marketService() *market.Service {
	httpClient := httpx.New(s.settings.Timeout)
	price := cryptocompare.New(httpClient, s.settings.PriceAPIBase, s.settings.PriceAPIKey)
	sentimentClient := sentiment.New(httpClient, s.settings.SentimentAPIBase, s.settings.SentimentAPIKey)
	policy := feed.Policy{
		MaxAttempts:      s.settings.FeedMaxAttempts,
		RetryDelay:       s.settings.FeedRetryDelay,
		RateLimitDelay:   s.settings.FeedRateLimitDelay,
		MaxRateLimitWait: s.settings.FeedMaxRateLimitWait,
	}
	return market.New(price, sentimentClient, s.openCache(), s.settings.CacheTTL, policy)
}

func (s *runtimeState) newMarketCommand() *cobra.Command {
	root := &cobra.Command{Use: "market", Short: "Meme token market data"}

	snapshot := &cobra.Command{
		Use:   "snapshot",
		Short: "Price, change, sentiment and risk for the tracked symbols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			result, err := s.marketService().Snapshot(ctx, s.settings.Symbols)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result.Tokens, result.Warnings, result.CacheStatus)
		},
	}

	var symbol string
	var days int
	history := &cobra.Command{
		Use:   "history",
		Short: "Daily closing prices for one symbol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			data, cacheStatus, err := s.marketService().History(ctx, symbol, days)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheStatus)
		},
	}
	history.Flags().StringVar(&symbol, "symbol", "", "Token symbol (e.g. PEPE)")
	history.Flags().IntVar(&days, "days", 30, "Number of daily data points")
	_ = history.MarkFlagRequired("symbol")

	root.AddCommand(snapshot)
	root.AddCommand(history)
	return root
}

func (s *runtimeState) newBalancesCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Native and payment token balances for the connected account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			manager, provider, err := s.sessionManager(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = provider.Close() }()

			session := manager.Resume(ctx)
			if session.State != wallet.StateConnected {
				return clierr.New(clierr.CodeUsage, "no connected session; run connect first")
			}

			backend, err := s.backend(ctx, false)
			if err != nil {
				return err
			}
			defer backend.Close()

			svc := s.balanceService(backend)
			snap, cacheStatus, warnings, err := svc.Snapshot(ctx, session.Account, session.ChainID, refresh)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), snap, warnings, cacheStatus)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the cache and re-read from the chain")
	return cmd
}
