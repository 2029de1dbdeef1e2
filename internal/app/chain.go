package app

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dfigueira/walletctl/internal/chain"
	"github.com/dfigueira/walletctl/internal/config"
	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/registry"
	"github.com/dfigueira/walletctl/internal/wallet"
)

// lazyChain defers dialing the JSON-RPC endpoint until a command actually
// touches the chain, so session-only commands work without an RPC URL.
// It satisfies session.BalanceSource, local.Submitter and pipeline.Confirmer.
type lazyChain struct {
	mu       sync.Mutex
	settings config.Settings
	client   *chain.Client
}

func newLazyChain(settings config.Settings) *lazyChain {
	return &lazyChain{settings: settings}
}

func (l *lazyChain) get(ctx context.Context) (*chain.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}
	rpcURL, err := registry.ResolveRPCURL(l.settings.RPCURL, l.settings.ChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc endpoint", err)
	}
	client, err := chain.Dial(ctx, rpcURL, l.settings.ChainID)
	if err != nil {
		return nil, err
	}
	l.client = client
	return client, nil
}

func (l *lazyChain) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		l.client.Close()
		l.client = nil
	}
}

func (l *lazyChain) BalanceOf(ctx context.Context, address, asset string) (*big.Rat, error) {
	client, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return client.BalanceOf(ctx, address, asset)
}

func (l *lazyChain) BuildTransferPayload(ctx context.Context, asset, amountDecimal, recipient string) (wallet.Payload, error) {
	client, err := l.get(ctx)
	if err != nil {
		return wallet.Payload{}, err
	}
	return client.BuildTransferPayload(asset, amountDecimal, recipient)
}

func (l *lazyChain) SubmitTransaction(ctx context.Context, key *ecdsa.PrivateKey, from common.Address, payload wallet.Payload) (string, error) {
	client, err := l.get(ctx)
	if err != nil {
		return "", err
	}
	return client.SubmitTransaction(ctx, key, from, payload)
}

func (l *lazyChain) WaitConfirmed(ctx context.Context, hash string, pollInterval time.Duration) error {
	client, err := l.get(ctx)
	if err != nil {
		return err
	}
	return client.WaitConfirmed(ctx, hash, pollInterval)
}
