package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/id"
	"github.com/dfigueira/walletctl/internal/model"
	"github.com/dfigueira/walletctl/internal/pipeline"
	"github.com/dfigueira/walletctl/internal/wallet"
)

func (s *runtimeState) newSendCommand() *cobra.Command {
	var assetArg, amountArg, toArg, providerArg string
	var attempts int
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a transfer through the execution pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			asset := id.NormalizeAsset(assetArg)
			if asset == "" {
				return clierr.New(clierr.CodeUsage, "--asset is required")
			}
			if strings.TrimSpace(toArg) == "" {
				return clierr.New(clierr.CodeUsage, "--to is required")
			}
			if _, err := id.ParsePositiveDecimal(amountArg); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "invalid --amount", err)
			}
			intent := s.transferIntent(asset, amountArg, strings.TrimSpace(toArg))
			return s.runExecution(trimRootPath(cmd.CommandPath()), providerArg, intent, attempts, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&assetArg, "asset", "", "Asset symbol (e.g. ETH, USDC)")
	cmd.Flags().StringVar(&amountArg, "amount", "", "Amount in decimal units")
	cmd.Flags().StringVar(&toArg, "to", "", "Recipient address")
	cmd.Flags().StringVar(&providerArg, "provider", "", "Wallet provider to connect when no session exists")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "Retry ceiling for transient submit failures")
	_ = cmd.MarkFlagRequired("asset")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (s *runtimeState) newOpportunitiesCommand() *cobra.Command {
	root := &cobra.Command{Use: "opportunities", Short: "Opportunity feed commands"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List opportunities from the configured feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()

			opps, cacheStatus, err := s.feedSvc.List(ctx, !s.settings.CacheEnabled)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), opps, nil, cacheStatus)
		},
	}

	var idArg, amountArg, providerArg string
	var attempts int
	executeCmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute an opportunity through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(idArg) == "" {
				return clierr.New(clierr.CodeUsage, "--id is required")
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			opp, cacheStatus, err := s.feedSvc.Find(ctx, idArg, !s.settings.CacheEnabled)
			cancel()
			if err != nil {
				return err
			}
			if strings.TrimSpace(opp.Recipient) == "" {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("opportunity %s has no target address", opp.ID))
			}

			amount := strings.TrimSpace(amountArg)
			if amount == "" {
				amount = opp.SuggestedAmount
			}
			if _, err := id.ParsePositiveDecimal(amount); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "invalid amount", err)
			}

			asset := id.NormalizeAsset(opp.Asset)
			intent := s.transferIntent(asset, amount, opp.Recipient)
			warnings := []string{fmt.Sprintf("executing opportunity %s (%s)", opp.ID, opp.Kind)}
			return s.runExecution(trimRootPath(cmd.CommandPath()), providerArg, intent, attempts, warnings, cacheStatus)
		},
	}
	executeCmd.Flags().StringVar(&idArg, "id", "", "Opportunity id from the feed")
	executeCmd.Flags().StringVar(&amountArg, "amount", "", "Override the suggested amount (decimal units)")
	executeCmd.Flags().StringVar(&providerArg, "provider", "", "Wallet provider to connect when no session exists")
	executeCmd.Flags().IntVar(&attempts, "attempts", 3, "Retry ceiling for transient submit failures")
	_ = executeCmd.MarkFlagRequired("id")

	root.AddCommand(listCmd)
	root.AddCommand(executeCmd)
	return root
}

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	var stateArg string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled executions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			state := pipeline.State(strings.ToLower(strings.TrimSpace(stateArg)))
			if state != "" && state != pipeline.StateSuccess && state != pipeline.StateError {
				return clierr.New(clierr.CodeUsage, "--state must be success or error")
			}
			records, err := s.journal.List(state, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read execution journal", err)
			}
			views := make([]model.ExecutionView, 0, len(records))
			for _, rec := range records {
				views = append(views, executionView(rec))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), views, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&stateArg, "state", "", "Filter by terminal state (success|error)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum executions to return")
	return cmd
}

func (s *runtimeState) transferIntent(asset, amountDecimal, recipient string) pipeline.Intent {
	return pipeline.Intent{
		Asset:         asset,
		AmountDecimal: amountDecimal,
		Recipient:     recipient,
		BuildPayload: func(ctx context.Context) (wallet.Payload, error) {
			payload, err := s.chain.BuildTransferPayload(ctx, asset, amountDecimal, recipient)
			if err != nil {
				return wallet.Payload{}, err
			}
			payload.From = s.session.Address()
			return payload, nil
		},
	}
}

// runExecution drives one intent to a terminal state, retrying transient
// submit failures until the attempts ceiling. Risk rejections and user
// rejections are never retried automatically.
func (s *runtimeState) runExecution(commandPath, providerArg string, intent pipeline.Intent, maxAttempts int, warnings []string, cacheStatus model.CacheStatus) error {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	provider, err := s.resolveExecutionProvider(providerArg)
	if err != nil {
		return err
	}

	pl := pipeline.New(s.session, s.gate, s.chain, s.chain, s.journal, pipeline.Options{
		Provider:       provider,
		ConfirmTimeout: s.settings.ConfirmTimeout,
		PollInterval:   s.settings.PollInterval,
	}, s.log)
	pl.SetObserver(func(rec pipeline.Record) {
		s.log.Debug().Str("execution", rec.ID).Str("state", string(rec.State)).Int("attempts", rec.Attempts).Msg("pipeline transition")
	})

	ctx := context.Background()
	try := 1
	rec, err := pl.Run(ctx, intent)
	for err != nil && rec.Attempts < maxAttempts && isTransientSubmitError(err) {
		warnings = append(warnings, fmt.Sprintf("attempt %d failed (%v); retrying", try, err))
		try++
		rec, err = pl.Retry(ctx)
	}
	_ = pl.Acknowledge()
	if err != nil {
		return err
	}
	warnings = append(warnings, rec.Warnings...)
	return s.emitSuccess(commandPath, executionView(rec), warnings, cacheStatus)
}

// resolveExecutionProvider restores any persisted session so an execution
// reuses it; the flag only matters when no session exists.
func (s *runtimeState) resolveExecutionProvider(providerArg string) (wallet.ProviderID, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	defer cancel()
	if err := s.session.Restore(ctx); err != nil {
		return "", err
	}
	if strings.TrimSpace(providerArg) == "" {
		return "", nil
	}
	return wallet.ParseProviderID(providerArg)
}

func isTransientSubmitError(err error) bool {
	if submitErr, ok := wallet.AsSubmitError(err); ok {
		return submitErr.Kind == wallet.SubmitTimeout || submitErr.Kind == wallet.SubmitNetworkError
	}
	return false
}

func executionView(rec pipeline.Record) model.ExecutionView {
	return model.ExecutionView{
		ID:         rec.ID,
		Asset:      rec.Intent.Asset,
		Amount:     rec.Intent.AmountDecimal,
		Recipient:  rec.Intent.Recipient,
		State:      string(rec.State),
		Attempts:   rec.Attempts,
		LastError:  rec.LastError,
		ResultHash: rec.ResultHash,
		StartedAt:  rec.StartedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}
