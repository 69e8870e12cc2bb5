package app

import (
	"github.com/spf13/cobra"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/id"
	"github.com/gustavo/advisor-cli/internal/wallet"
)

func (s *runtimeState) newConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet and persist the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			manager, provider, err := s.sessionManager(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = provider.Close() }()

			_, warnings, err := manager.Connect(ctx)
			if err != nil {
				return err
			}
			if err := manager.EnsureNetwork(ctx, s.settings.ChainID); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), manager.View(), warnings, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Clear the session and all session-scoped state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			manager, provider, err := s.sessionManager(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = provider.Close() }()

			if err := manager.Disconnect(); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), manager.View(), nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session, resuming silently when possible",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			manager, provider, err := s.sessionManager(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = provider.Close() }()

			manager.Resume(ctx)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), manager.View(), nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newNetworkCommand() *cobra.Command {
	root := &cobra.Command{Use: "network", Short: "Network commands"}

	var target string
	switchCmd := &cobra.Command{
		Use:   "switch",
		Short: "Switch the wallet to a chain, registering it when unknown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID, err := id.ParseChainRef(target)
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
			if err := manager.EnsureNetwork(ctx, chainID); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), manager.View(), nil, cacheMetaBypass())
		},
	}
	switchCmd.Flags().StringVar(&target, "chain", "", "Target chain (eip155:<id>, decimal, or 0x hex)")
	_ = switchCmd.MarkFlagRequired("chain")

	root.AddCommand(switchCmd)
	return root
}
