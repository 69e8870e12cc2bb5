package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gustavo/advisor-cli/internal/chain"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/gate"
	"github.com/gustavo/advisor-cli/internal/id"
	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/registry"
	"github.com/gustavo/advisor-cli/internal/wallet"
)

func (s *runtimeState) newAdvisorsCommand() *cobra.Command {
	root := &cobra.Command{Use: "advisors", Short: "Advisor catalog and entitlements"}
	root.AddCommand(s.newAdvisorsListCommand())
	root.AddCommand(s.newAdvisorsUnlockCommand())
	root.AddCommand(s.newStakeCommand("stake", "Stake payment tokens with the advisor gateway"))
	root.AddCommand(s.newStakeCommand("unstake", "Withdraw staked payment tokens"))
	return root
}

func (s *runtimeState) newAdvisorsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List advisors and whether the connected account has access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			catalog := registry.Advisors()
			infos := make([]model.AdvisorInfo, 0, len(catalog))

			unlocked := false
			var warnings []string
			manager, provider, err := s.sessionManager(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = provider.Close() }()
			if session := manager.Resume(ctx); session.State == wallet.StateConnected {
				backend, err := s.backend(ctx, false)
				if err == nil {
					granted, checkErr := backend.CheckAccess(ctx, session.Account)
					backend.Close()
					if checkErr != nil {
						warnings = append(warnings, "entitlement check failed: "+checkErr.Error())
					} else {
						unlocked = granted
					}
				} else {
					warnings = append(warnings, "entitlement check skipped: "+err.Error())
				}
			}

			for _, advisor := range catalog {
				infos = append(infos, model.AdvisorInfo{
					FeatureKey:  advisor.FeatureKey,
					Name:        advisor.Name,
					Description: advisor.Description,
					UnlockCost:  advisor.UnlockCost,
					Unlocked:    unlocked,
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), infos, warnings, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newAdvisorsUnlockCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <feature-key>",
		Short: "Authorize and purchase access for an advisor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			featureKey := args[0]
			if _, ok := registry.AdvisorByKey(featureKey); !ok {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown advisor %q", featureKey))
			}

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
			if err := manager.EnsureNetwork(ctx, s.settings.ChainID); err != nil {
				return err
			}

			backend, err := s.backend(ctx, true)
			if err != nil {
				return err
			}
			defer backend.Close()

			contracts, err := s.contracts()
			if err != nil {
				return err
			}
			fee, err := s.consultationFee()
			if err != nil {
				return err
			}

			g := gate.New(backend, backend, manager, contracts.GatewayAddress, fee)
			manager.AddInvalidator(g)

			view, err := g.EnsureUnlocked(ctx, session.Account, featureKey)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newStakeCommand(kind, short string) *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   kind,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := id.ToBaseUnits(amount, s.settings.TokenDecimals)
			if err != nil {
				return err
			}

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
			if err := manager.EnsureNetwork(ctx, s.settings.ChainID); err != nil {
				return err
			}

			backend, err := s.backend(ctx, true)
			if err != nil {
				return err
			}
			defer backend.Close()

			var handle chain.TxHandle
			if kind == "stake" {
				handle, err = backend.Stake(ctx, base)
			} else {
				handle, err = backend.Unstake(ctx, base)
			}
			if err != nil {
				return err
			}
			receipt, err := handle.Await(ctx)
			if err != nil {
				return err
			}
			if !receipt.Success {
				return clierr.New(clierr.CodeOnChainRejected, kind+" transaction reverted on-chain")
			}
			result := model.TxResult{Kind: kind, TxHash: receipt.TxHash, Status: "confirmed"}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Token amount in decimal form")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
