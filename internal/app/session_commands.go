package app

import (
	"context"
	"math/big"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/id"
	"github.com/dfigueira/walletctl/internal/model"
	"github.com/dfigueira/walletctl/internal/session"
	"github.com/dfigueira/walletctl/internal/wallet"
)

func (s *runtimeState) newConnectCommand() *cobra.Command {
	var providerArg string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet provider and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			providerID, err := wallet.ParseProviderID(providerArg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			state, err := s.session.Connect(ctx, providerID)
			if err != nil {
				return err
			}
			var warnings []string
			if state.CachedBalance == "" {
				warnings = append(warnings, "balance refresh failed; balance will be fetched on next use")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), sessionView(state, true), warnings, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&providerArg, "provider", "local", "Wallet provider (local|frame)")
	return cmd
}

func (s *runtimeState) newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the wallet and clear the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			// Restore first so disconnect also clears a session persisted
			// by a previous process.
			_ = s.session.Restore(ctx)
			if err := s.session.Disconnect(ctx); err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.SessionView{Connected: false}, nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current wallet session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			if err := s.session.Restore(ctx); err != nil {
				return err
			}
			state, ok := s.session.Current()
			if !ok {
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.SessionView{Connected: false}, nil, cacheMetaBypass())
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), sessionView(state, true), nil, cacheMetaBypass())
		},
	}
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var assetArg string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Read the live on-chain balance for the connected wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			if err := s.session.Restore(ctx); err != nil {
				return err
			}
			if !s.session.Connected() {
				return clierr.New(clierr.CodeUsage, "no wallet session; run connect first")
			}

			native := id.NormalizeAsset(s.nativeAsset())
			asset := id.NormalizeAsset(assetArg)
			if asset == "" {
				asset = native
			}

			var view model.BalanceView
			if asset == native {
				// Native reads go through the session so its cached balance
				// stays current.
				state, err := s.session.RefreshBalance(ctx)
				if err != nil {
					return clierr.Wrap(clierr.CodeNetwork, "read balance", err)
				}
				view = model.BalanceView{Asset: asset, Balance: state.CachedBalance, Address: state.Address}
			} else {
				balance, err := s.chain.BalanceOf(ctx, s.session.Address(), asset)
				if err != nil {
					return clierr.Wrap(clierr.CodeNetwork, "read balance", err)
				}
				view = model.BalanceView{Asset: asset, Balance: formatRat(balance), Address: s.session.Address()}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), view, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&assetArg, "asset", "", "Asset symbol (defaults to the chain's native asset)")
	return cmd
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Wallet provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List known wallet providers and their availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			available := map[wallet.ProviderID]bool{}
			for _, providerID := range s.registry.Available() {
				available[providerID] = true
			}
			views := make([]model.ProviderView, 0)
			for _, providerID := range s.registry.Known() {
				views = append(views, model.ProviderView{
					ID:        string(providerID),
					Available: available[providerID],
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil, cacheMetaBypass())
		},
	}
	root.AddCommand(list)
	return root
}

func sessionView(state session.State, connected bool) model.SessionView {
	return model.SessionView{
		Connected:     connected,
		Provider:      string(state.Provider),
		Address:       state.Address,
		CachedBalance: state.CachedBalance,
		ConnectedAt:   state.ConnectedAt,
	}
}

// formatRat renders a balance with up to 8 fractional digits, trimming
// trailing zeros.
func formatRat(v *big.Rat) string {
	if v == nil {
		return "0"
	}
	if v.IsInt() {
		return v.Num().String()
	}
	formatted := v.FloatString(8)
	formatted = strings.TrimRight(formatted, "0")
	return strings.TrimRight(formatted, ".")
}
