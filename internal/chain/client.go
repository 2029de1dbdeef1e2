// Package chain wraps the EVM RPC client behind the narrow surface the rest
// of the tool needs: live balance reads, transfer payload building, raw
// transaction submission, and confirmation waiting.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/id"
	"github.com/dfigueira/walletctl/internal/registry"
	"github.com/dfigueira/walletctl/internal/wallet"
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

type Client struct {
	eth     *ethclient.Client
	chainID int64
}

func Dial(ctx context.Context, rpcURL string, chainID int64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeNetwork, "connect rpc", err)
	}
	return &Client{eth: eth, chainID: chainID}, nil
}

func (c *Client) Close() {
	if c != nil && c.eth != nil {
		c.eth.Close()
	}
}

func (c *Client) ChainID() int64 { return c.chainID }

// BalanceOf reads the live balance of address for the given asset symbol,
// returned in decimal units.
func (c *Client) BalanceOf(ctx context.Context, address, asset string) (*big.Rat, error) {
	token, ok := registry.TokenBySymbol(c.chainID, asset)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown asset %s on chain %d", asset, c.chainID))
	}
	owner := common.HexToAddress(address)

	if token.Native {
		wei, err := c.eth.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeNetwork, "read native balance", err)
		}
		return ratFromBaseUnits(wei, token.Decimals), nil
	}

	calldata, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode balanceOf", err)
	}
	contract := common.HexToAddress(token.Address)
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: calldata}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeNetwork, "read token balance", err)
	}
	values, err := erc20ABI.Unpack("balanceOf", raw)
	if err != nil || len(values) != 1 {
		return nil, clierr.New(clierr.CodeNetwork, "decode token balance")
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeNetwork, "decode token balance")
	}
	return ratFromBaseUnits(amount, token.Decimals), nil
}

// BuildTransferPayload turns (asset, decimal amount, recipient) into the
// chain payload a wallet capability signs: a native value transfer or an
// ERC20 transfer call.
func (c *Client) BuildTransferPayload(asset, amountDecimal, recipient string) (wallet.Payload, error) {
	if !common.IsHexAddress(recipient) {
		return wallet.Payload{}, clierr.New(clierr.CodeUsage, "invalid recipient address")
	}
	token, ok := registry.TokenBySymbol(c.chainID, asset)
	if !ok {
		return wallet.Payload{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown asset %s on chain %d", asset, c.chainID))
	}
	baseUnits, _, err := id.NormalizeAmount("", amountDecimal, token.Decimals)
	if err != nil {
		return wallet.Payload{}, err
	}

	if token.Native {
		return wallet.Payload{
			ChainID: c.chainID,
			To:      common.HexToAddress(recipient).Hex(),
			Value:   baseUnits,
		}, nil
	}

	amount, ok := new(big.Int).SetString(baseUnits, 10)
	if !ok {
		return wallet.Payload{}, clierr.New(clierr.CodeUsage, "invalid transfer amount")
	}
	calldata, err := erc20ABI.Pack("transfer", common.HexToAddress(recipient), amount)
	if err != nil {
		return wallet.Payload{}, clierr.Wrap(clierr.CodeInternal, "encode transfer", err)
	}
	return wallet.Payload{
		ChainID: c.chainID,
		To:      common.HexToAddress(token.Address).Hex(),
		Value:   "0",
		Data:    calldata,
	}, nil
}

// SubmitTransaction signs the payload with the given key and broadcasts it,
// returning the transaction hash. Fee handling follows EIP-1559 with a
// suggested tip and a 2*base+tip fee cap.
func (c *Client) SubmitTransaction(ctx context.Context, key *ecdsa.PrivateKey, from common.Address, payload wallet.Payload) (string, error) {
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeNetwork, "read chain id", err)
	}
	if payload.ChainID != 0 && payload.ChainID != chainID.Int64() {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("payload chain mismatch: expected %d, got %d", payload.ChainID, chainID.Int64()))
	}

	target := common.HexToAddress(payload.To)
	value, ok := new(big.Int).SetString(payload.Value, 10)
	if !ok {
		return "", clierr.New(clierr.CodeUsage, "invalid payload value")
	}
	msg := ethereum.CallMsg{From: from, To: &target, Value: value, Data: payload.Data}

	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeNetwork, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * 1.2)

	tipCap, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeNetwork, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeNetwork, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      payload.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "sign transaction", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", clierr.Wrap(clierr.CodeNetwork, "broadcast transaction", err)
	}
	return signed.Hash().Hex(), nil
}

// WaitConfirmed polls for the receipt of hash until ctx expires. Transient
// RPC polling failures are ignored until the deadline.
func (c *Client) WaitConfirmed(ctx context.Context, hash string, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	txHash := common.HexToHash(hash)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return nil
			}
			return clierr.New(clierr.CodeNetwork, "transaction reverted on-chain")
		}
		// Transient polling failures keep the transaction in flight;
		// only the deadline gives up.
		select {
		case <-ctx.Done():
			return clierr.Wrap(clierr.CodeTimeout, "timed out waiting for confirmation", ctx.Err())
		case <-ticker.C:
		}
	}
}

func ratFromBaseUnits(amount *big.Int, decimals int) *big.Rat {
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(new(big.Int).Set(amount), denom)
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
