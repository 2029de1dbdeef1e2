package app

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dfigueira/walletctl/internal/cache"
	"github.com/dfigueira/walletctl/internal/config"
	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/feed"
	"github.com/dfigueira/walletctl/internal/httpx"
	"github.com/dfigueira/walletctl/internal/logging"
	"github.com/dfigueira/walletctl/internal/model"
	"github.com/dfigueira/walletctl/internal/out"
	"github.com/dfigueira/walletctl/internal/pipeline"
	"github.com/dfigueira/walletctl/internal/policy"
	"github.com/dfigueira/walletctl/internal/registry"
	"github.com/dfigueira/walletctl/internal/risk"
	"github.com/dfigueira/walletctl/internal/session"
	"github.com/dfigueira/walletctl/internal/version"
	"github.com/dfigueira/walletctl/internal/wallet"
	"github.com/dfigueira/walletctl/internal/wallet/frame"
	"github.com/dfigueira/walletctl/internal/wallet/local"
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
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	log         zerolog.Logger
	root        *cobra.Command
	lastCommand string

	registry     *wallet.Registry
	chain        *lazyChain
	sessionStore *session.Store
	session      *session.Session
	gate         *risk.Gate
	feedClient   *feed.Client
	feedSvc      *feed.Service
	cache        *cache.Store
	journal      *pipeline.Journal
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, log: logging.Nop()}
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
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Wallet session and transaction execution CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.log = logging.New(s.runner.stderr, settings.Verbose)
			if settings.Verbose {
				cmd.Flags().Visit(func(f *pflag.Flag) {
					s.log.Debug().Str("flag", f.Name).Str("value", f.Value.String()).Msg("flag override")
				})
			}

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			if s.registry == nil {
				s.chain = newLazyChain(settings)
				httpClient := httpx.New(settings.Timeout, settings.Retries)

				s.registry = wallet.NewRegistry()
				s.registry.Register(local.New(s.chain))
				s.registry.Register(frame.New(httpClient, settings.BridgeURL))

				gate, err := risk.NewGate(risk.Config{
					ApprovedAssets:    settings.ApprovedAssets,
					MaxTxAmount:       settings.MaxTxAmount,
					MinBalanceWarning: settings.MinBalanceWarning,
				})
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "load risk configuration", err)
				}
				s.gate = gate

				s.feedClient = feed.NewClient(httpClient, settings.FeedURL)
				s.feedSvc = feed.NewService(s.feedClient, nil, settings.FeedTTL)
			}

			if shouldOpenSession(path) && s.session == nil {
				store, err := session.OpenStore(settings.SessionPath, settings.SessionLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open session store", err)
				}
				s.sessionStore = store
				s.session = session.New(s.registry, store, s.chain, s.nativeAsset(), s.log)
			}

			if shouldOpenJournal(path) && s.journal == nil {
				journal, err := pipeline.OpenJournal(settings.JournalPath, settings.JournalLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open execution journal", err)
				}
				s.journal = journal
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
				// Same client as above; the cache store only changes read-through.
				s.feedSvc = feed.NewService(s.feedClient, cacheStore, settings.FeedTTL)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().BoolVar(&s.flags.Verbose, "verbose", false, "Verbose diagnostics on stderr")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per HTTP request")
	cmd.PersistentFlags().Int64Var(&s.flags.ChainID, "chain-id", 0, "Chain ID (default 1)")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "JSON-RPC endpoint override")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newConnectCommand())
	cmd.AddCommand(s.newDisconnectCommand())
	cmd.AddCommand(s.newStatusCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(s.newSendCommand())
	cmd.AddCommand(s.newOpportunitiesCommand())
	cmd.AddCommand(s.newHistoryCommand())
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

func (s *runtimeState) nativeAsset() string {
	if token, ok := registry.NativeToken(s.settings.ChainID); ok {
		return token.Symbol
	}
	return "ETH"
}

func (s *runtimeState) closeStores() {
	if s.sessionStore != nil {
		_ = s.sessionStore.Close()
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.chain != nil {
		s.chain.Close()
	}
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: uuid.NewString(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings.OutputMode)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    errorType(code),
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: uuid.NewString(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, mode)
}

func errorType(code int) string {
	switch clierr.Code(code) {
	case clierr.CodeUsage:
		return "usage_error"
	case clierr.CodeUnavailable:
		return "wallet_unavailable"
	case clierr.CodeRejected:
		return "user_rejected"
	case clierr.CodeBlocked:
		return "risk_blocked"
	case clierr.CodeTimeout:
		return "timeout"
	case clierr.CodeBusy:
		return "execution_busy"
	case clierr.CodeNetwork:
		return "network_error"
	case clierr.CodeDisabled:
		return "command_disabled"
	default:
		return "internal_error"
	}
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

// normalizeRunError folds domain errors into the typed CLI taxonomy so exit
// codes stay stable.
func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if connectErr, ok := wallet.AsConnectError(err); ok {
		switch connectErr.Kind {
		case wallet.ConnectRejected:
			return clierr.Wrap(clierr.CodeRejected, connectErr.Error(), connectErr.Cause)
		default:
			return clierr.Wrap(clierr.CodeUnavailable, connectErr.Error(), connectErr.Cause)
		}
	}
	if submitErr, ok := wallet.AsSubmitError(err); ok {
		switch submitErr.Kind {
		case wallet.SubmitUserRejected:
			return clierr.Wrap(clierr.CodeRejected, submitErr.Error(), submitErr.Cause)
		case wallet.SubmitTimeout:
			return clierr.Wrap(clierr.CodeTimeout, submitErr.Error(), submitErr.Cause)
		case wallet.SubmitNetworkError:
			return clierr.Wrap(clierr.CodeNetwork, submitErr.Error(), submitErr.Cause)
		default:
			return clierr.Wrap(clierr.CodeInternal, submitErr.Error(), submitErr.Cause)
		}
	}
	var rejection *risk.Rejection
	if stderrors.As(err, &rejection) {
		return clierr.Wrap(clierr.CodeBlocked, rejection.Error(), nil)
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

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func shouldOpenSession(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "providers list", "history":
		return false
	default:
		return true
	}
}

func shouldOpenJournal(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "send", "opportunities execute", "history":
		return true
	default:
		return false
	}
}

func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "opportunities list", "opportunities execute":
		return true
	default:
		return false
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}
