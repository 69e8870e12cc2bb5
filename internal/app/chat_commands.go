package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gustavo/advisor-cli/internal/chat"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/gate"
	"github.com/gustavo/advisor-cli/internal/registry"
	"github.com/gustavo/advisor-cli/internal/wallet"
)

func (s *runtimeState) newChatCommand() *cobra.Command {
	root := &cobra.Command{Use: "chat", Short: "Advisor chat windows"}
	root.AddCommand(s.newChatOpenCommand())
	root.AddCommand(s.newChatCloseCommand())
	root.AddCommand(s.newChatLogCommand())
	root.AddCommand(s.newChatAppendCommand())
	return root
}

func (s *runtimeState) chatRegistry() (*chat.Registry, error) {
	store, err := s.openState()
	if err != nil {
		return nil, err
	}
	return chat.NewRegistry(store), nil
}

// requireEntitlement refuses chat access for advisors the connected account
// has not unlocked. The check goes through the access gate so its record
// bookkeeping stays the single source of entitlement state; the registry
// itself never checks this.
func (s *runtimeState) requireEntitlement(ctx context.Context, featureKey string) error {
	if _, ok := registry.AdvisorByKey(featureKey); !ok {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown advisor %q", featureKey))
	}
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

	granted, err := g.Check(ctx, session.Account, featureKey)
	if err != nil {
		return err
	}
	if !granted {
		return clierr.New(clierr.CodeAuth,
			fmt.Sprintf("advisor %q is locked for this account; run advisors unlock %s", featureKey, featureKey))
	}
	return nil
}

func (s *runtimeState) newChatOpenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open <feature-key>",
		Short: "Focus an advisor chat window (hides all others)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			if err := s.requireEntitlement(ctx, args[0]); err != nil {
				return err
			}
			reg, err := s.chatRegistry()
			if err != nil {
				return err
			}
			view, err := reg.Select(args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newChatCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <feature-key>",
		Short: "Hide a chat window, keeping its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := s.chatRegistry()
			if err != nil {
				return err
			}
			if err := reg.Close(args[0]); err != nil {
				return err
			}
			view, err := reg.Window(args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newChatLogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log [feature-key]",
		Short: "Show chat windows and transcripts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := s.chatRegistry()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				view, err := reg.Window(args[0])
				if err != nil {
					return err
				}
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, cacheMetaBypass())
			}
			views, err := reg.Windows()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newChatAppendCommand() *cobra.Command {
	var role string
	var content string
	cmd := &cobra.Command{
		Use:   "append <feature-key>",
		Short: "Append a message to an advisor transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != "user" && role != "assistant" {
				return clierr.New(clierr.CodeUsage, "role must be user or assistant")
			}
			ctx, cancel := s.commandContext(cmd)
			defer cancel()

			if err := s.requireEntitlement(ctx, args[0]); err != nil {
				return err
			}
			reg, err := s.chatRegistry()
			if err != nil {
				return err
			}
			if err := reg.Append(args[0], role, content); err != nil {
				return err
			}
			view, err := reg.Window(args[0])
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&role, "role", "user", "Message role (user|assistant)")
	cmd.Flags().StringVar(&content, "content", "", "Message content")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}
