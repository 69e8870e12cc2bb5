package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gustavo/advisor-cli/internal/cache"
	"github.com/gustavo/advisor-cli/internal/chain"
	"github.com/gustavo/advisor-cli/internal/chain/signer"
	"github.com/gustavo/advisor-cli/internal/chat"
	"github.com/gustavo/advisor-cli/internal/config"
	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/id"
	"github.com/gustavo/advisor-cli/internal/model"
	"github.com/gustavo/advisor-cli/internal/out"
	"github.com/gustavo/advisor-cli/internal/policy"
	"github.com/gustavo/advisor-cli/internal/registry"
	"github.com/gustavo/advisor-cli/internal/schema"
	"github.com/gustavo/advisor-cli/internal/state"
	"github.com/gustavo/advisor-cli/internal/version"
	"github.com/gustavo/advisor-cli/internal/wallet"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner       *Runner
	flags        config.GlobalFlags
	settings     config.Settings
	cache        *cache.Store
	stateStore   *state.Store
	root         *cobra.Command
	lastCommand  string
	lastWarnings []string
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	state.closeStores()
	if err == nil {
		return 0
	}
	state.renderError("", err, state.lastWarnings)
	return clierr.ExitCode(err)
}

func (s *runtimeState) closeStores() {
	if s.cache != nil {
		_ = s.cache.Close()
		s.cache = nil
	}
	if s.stateStore != nil {
		_ = s.stateStore.Close()
		s.stateStore = nil
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Token-gated AI advisor session CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			return policy.CheckCommandAllowed(settings.EnableCommands, path)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Request timeout")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "Override the JSON-RPC endpoint")
	cmd.PersistentFlags().Int64Var(&s.flags.ChainID, "chain", 0, "Target chain id")
	cmd.PersistentFlags().StringVar(&s.flags.KeySource, "key-source", "", "Signing key source (auto|env|file|keystore)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newConnectCommand())
	cmd.AddCommand(s.newDisconnectCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newNetworkCommand())
	cmd.AddCommand(s.newBalancesCommand())
	cmd.AddCommand(s.newMarketCommand())
	cmd.AddCommand(s.newAdvisorsCommand())
	cmd.AddCommand(s.newChatCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := schema.Build(s.root, path)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass())
		},
	}
	return cmd
}

// openState opens the durable key-value store holding the persisted account
// and chat transcripts.
func (s *runtimeState) openState() (*state.Store, error) {
	if s.stateStore != nil {
		return s.stateStore, nil
	}
	store, err := state.Open(s.settings.StatePath, s.settings.StateLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open state store", err)
	}
	s.stateStore = store
	return store, nil
}

func (s *runtimeState) openCache() *cache.Store {
	if !s.settings.CacheEnabled {
		return nil
	}
	if s.cache != nil {
		return s.cache
	}
	store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
	if err != nil {
		// The cache is an optimization; a broken cache file degrades to
		// uncached reads with a warning.
		s.lastWarnings = append(s.lastWarnings, "cache unavailable: "+err.Error())
		return nil
	}
	s.cache = store
	return store
}

// loadSigner resolves the signing key. Missing keys are tolerated for
// read-only commands; callers that must sign check for nil.
func (s *runtimeState) loadSigner() signer.Signer {
	localSigner, err := signer.FromEnv(s.settings.KeySource)
	if err != nil {
		return nil
	}
	return localSigner
}

// contracts resolves the deployed contract addresses, letting explicit
// config override the registry.
func (s *runtimeState) contracts() (registry.ContractSet, error) {
	set, err := registry.Contracts(s.settings.ChainID)
	if err != nil {
		if s.settings.TokenAddress == "" || s.settings.GatewayAddress == "" {
			return registry.ContractSet{}, clierr.Wrap(clierr.CodeUsage, "resolve contract addresses", err)
		}
		set = registry.ContractSet{TokenSymbol: "ADV", TokenDecimals: s.settings.TokenDecimals}
	}
	if s.settings.TokenAddress != "" {
		set.TokenAddress = s.settings.TokenAddress
	}
	if s.settings.GatewayAddress != "" {
		set.GatewayAddress = s.settings.GatewayAddress
	}
	return set, nil
}

// sessionManager builds the wallet manager over a node-backed provider.
// When the node is unreachable the provider degrades to offline: silent
// resume then reports a disconnected session instead of failing. The chat
// registry is registered as an invalidator so account and chain changes
// clear persisted transcripts.
func (s *runtimeState) sessionManager(ctx context.Context) (*wallet.Manager, wallet.Provider, error) {
	store, err := s.openState()
	if err != nil {
		return nil, nil, err
	}
	var provider wallet.Provider
	nodeProvider, dialErr := wallet.NewNodeProvider(ctx, s.settings.RPCURL, s.settings.ChainID, s.loadSigner())
	if dialErr != nil {
		provider = &offlineProvider{chainID: s.settings.ChainID, dialErr: dialErr}
	} else {
		provider = nodeProvider
	}
	manager := wallet.NewManager(provider, store)
	manager.AddInvalidator(chat.NewRegistry(store))
	return manager, provider, nil
}

// backend builds the on-chain read/write boundary for the configured chain.
func (s *runtimeState) backend(ctx context.Context, withSigner bool) (*chain.EthBackend, error) {
	contracts, err := s.contracts()
	if err != nil {
		return nil, err
	}
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.ChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc endpoint", err)
	}
	var txSigner signer.Signer
	if withSigner {
		txSigner = s.loadSigner()
	}
	return chain.Dial(ctx, rpcURL, s.settings.ChainID, contracts, txSigner)
}

func (s *runtimeState) consultationFee() (*big.Int, error) {
	fee, err := id.ToBaseUnits(s.settings.ConsultationFee, s.settings.TokenDecimals)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse consultation fee", err)
	}
	return fee, nil
}

func (s *runtimeState) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), s.settings.Timeout)
}

// offlineProvider stands in when no node is reachable. Silent operations
// degrade to "not connected"; interactive ones surface the dial error.
type offlineProvider struct {
	chainID int64
	dialErr error
}

func (p *offlineProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	return nil, p.dialErr
}

func (p *offlineProvider) Accounts(ctx context.Context) ([]string, error) { return nil, nil }

func (p *offlineProvider) ChainID(ctx context.Context) (int64, error) { return p.chainID, nil }

func (p *offlineProvider) SwitchChain(ctx context.Context, chainID int64) error { return p.dialErr }

func (p *offlineProvider) AddChain(ctx context.Context, params registry.NetworkParams) error {
	return p.dialErr
}

func (p *offlineProvider) Events() <-chan wallet.Event { return nil }

func (p *offlineProvider) Close() error { return nil }

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus) error {
	if len(s.lastWarnings) > 0 {
		warnings = append(append([]string(nil), s.lastWarnings...), warnings...)
	}
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := errorType(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:       code,
			Type:       typ,
			Message:    message,
			RetryClass: string(clierr.ClassOf(err)),
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func errorType(err error) string {
	cErr, ok := clierr.As(err)
	if !ok {
		return "internal_error"
	}
	switch cErr.Code {
	case clierr.CodeUsage:
		return "usage_error"
	case clierr.CodeProviderUnavailable:
		return "provider_unavailable"
	case clierr.CodeUserDeclined:
		return "user_declined"
	case clierr.CodeNetworkMismatch:
		return "network_mismatch"
	case clierr.CodeInsufficientFunds:
		return "insufficient_funds"
	case clierr.CodeOnChainRejected:
		return "on_chain_rejected"
	case clierr.CodeUnconfirmed:
		return "unconfirmed"
	case clierr.CodeFeedUnavailable:
		return "feed_unavailable"
	case clierr.CodeRateLimited:
		return "rate_limited"
	case clierr.CodeUnavailable:
		return "unavailable"
	case clierr.CodeAuth:
		return "auth_error"
	case clierr.CodeStale:
		return "stale_data"
	case clierr.CodeBlocked:
		return "command_blocked"
	default:
		return "internal_error"
	}
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
