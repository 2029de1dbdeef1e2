// Package frame implements the wallet capability over a Frame-style desktop
// wallet daemon reached via JSON-RPC on localhost. The daemon holds the keys
// and prompts the user for every signature; this side only forwards requests.
package frame

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/httpx"
	"github.com/dfigueira/walletctl/internal/wallet"
)

const ProviderID wallet.ProviderID = "frame"

// EIP-1193: the user declined the request.
const rpcCodeUserRejected = 4001

type Provider struct {
	client *httpx.Client
	url    string
}

func New(client *httpx.Client, url string) *Provider {
	return &Provider{client: client, url: strings.TrimSpace(url)}
}

func (p *Provider) ID() wallet.ProviderID { return ProviderID }

// Probe only checks configuration; it must not touch the daemon.
func (p *Provider) Probe() bool {
	return p.url != ""
}

func (p *Provider) Connect(ctx context.Context) (string, error) {
	var accounts []string
	if err := p.call(ctx, "eth_requestAccounts", []any{}, &accounts); err != nil {
		if rpcErr, ok := asRPCError(err); ok && rpcErr.Code == rpcCodeUserRejected {
			return "", wallet.NewConnectError(ProviderID, wallet.ConnectRejected, err)
		}
		return "", wallet.NewConnectError(ProviderID, wallet.ConnectUnavailable, err)
	}
	if len(accounts) == 0 {
		return "", wallet.NewConnectError(ProviderID, wallet.ConnectRejected, nil)
	}
	return accounts[0], nil
}

func (p *Provider) SignAndSubmit(ctx context.Context, payload wallet.Payload) (string, error) {
	value, ok := new(big.Int).SetString(payload.Value, 10)
	if !ok {
		return "", wallet.NewSubmitError(ProviderID, wallet.SubmitUnknown, "invalid payload value", nil)
	}
	tx := map[string]string{
		"to":    payload.To,
		"value": "0x" + value.Text(16),
	}
	// Without an explicit sender a multi-account daemon signs with its
	// default account, not the session's.
	if payload.From != "" {
		tx["from"] = payload.From
	}
	if len(payload.Data) > 0 {
		tx["data"] = "0x" + hex.EncodeToString(payload.Data)
	}

	var hash string
	if err := p.call(ctx, "eth_sendTransaction", []any{tx}, &hash); err != nil {
		if rpcErr, ok := asRPCError(err); ok {
			if rpcErr.Code == rpcCodeUserRejected {
				return "", wallet.NewSubmitError(ProviderID, wallet.SubmitUserRejected, "", err)
			}
			return "", wallet.NewSubmitError(ProviderID, wallet.SubmitUnknown, rpcErr.Message, err)
		}
		if typed, ok := clierr.As(err); ok && typed.Code == clierr.CodeTimeout {
			return "", wallet.NewSubmitError(ProviderID, wallet.SubmitTimeout, "", err)
		}
		return "", wallet.NewSubmitError(ProviderID, wallet.SubmitNetworkError, "", err)
	}
	return hash, nil
}

// Disconnect is local-only: the daemon keeps its own session state.
func (p *Provider) Disconnect(ctx context.Context) error {
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func asRPCError(err error) (*rpcError, bool) {
	var target *rpcError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func (p *Provider) call(ctx context.Context, method string, params []any, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := p.client.PostJSON(ctx, p.url, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return clierr.Wrap(clierr.CodeNetwork, "decode rpc result", err)
	}
	return nil
}
