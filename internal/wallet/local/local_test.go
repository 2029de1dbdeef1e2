package local

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/dfigueira/walletctl/internal/errors"
	"github.com/dfigueira/walletctl/internal/wallet"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeSubmitter struct {
	err     error
	payload wallet.Payload
}

func (f *fakeSubmitter) SubmitTransaction(ctx context.Context, key *ecdsa.PrivateKey, from common.Address, payload wallet.Payload) (string, error) {
	f.payload = payload
	if f.err != nil {
		return "", f.err
	}
	return "0xhash", nil
}

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, "")
	t.Setenv(EnvKeystorePath, "")
	t.Setenv(EnvKeystorePassword, "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestProbeWithoutKeyMaterial(t *testing.T) {
	clearKeyEnv(t)
	if New(nil).Probe() {
		t.Fatal("probe passed without any key material")
	}
}

func TestProbeWithEnvKey(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, testKeyHex)
	if !New(nil).Probe() {
		t.Fatal("probe failed with env key set")
	}
}

func TestConnectDerivesAddress(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, testKeyHex)

	provider := New(nil)
	address, err := provider.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("parse test key: %v", err)
	}
	want := crypto.PubkeyToAddress(key.PublicKey).Hex()
	if address != want {
		t.Fatalf("address = %s, want %s", address, want)
	}
}

func TestConnectAcceptsPrefixedKey(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, "0x"+testKeyHex)

	if _, err := New(nil).Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed with 0x prefix: %v", err)
	}
}

func TestConnectFromKeyFile(t *testing.T) {
	clearKeyEnv(t)
	keyPath := filepath.Join(t.TempDir(), "key.hex")
	if err := os.WriteFile(keyPath, []byte(testKeyHex+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKeyFile, keyPath)

	if _, err := New(nil).Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed from key file: %v", err)
	}
}

func TestConnectWithoutKeyIsUnavailable(t *testing.T) {
	clearKeyEnv(t)

	_, err := New(nil).Connect(context.Background())
	connectErr, ok := wallet.AsConnectError(err)
	if !ok || connectErr.Kind != wallet.ConnectUnavailable {
		t.Fatalf("error = %v, want unavailable connect error", err)
	}
}

func TestSignAndSubmitDelegates(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, testKeyHex)
	submitter := &fakeSubmitter{}
	provider := New(submitter)
	if _, err := provider.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	payload := wallet.Payload{ChainID: 1, To: "0xr", Value: "5"}
	hash, err := provider.SignAndSubmit(context.Background(), payload)
	if err != nil {
		t.Fatalf("SignAndSubmit failed: %v", err)
	}
	if hash != "0xhash" || submitter.payload.To != "0xr" {
		t.Fatalf("hash=%s payload=%+v", hash, submitter.payload)
	}
}

func TestSignAndSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind wallet.SubmitErrorKind
	}{
		{"timeout", clierr.New(clierr.CodeTimeout, "deadline"), wallet.SubmitTimeout},
		{"network", clierr.New(clierr.CodeNetwork, "rpc down"), wallet.SubmitNetworkError},
		{"other", errors.New("boom"), wallet.SubmitUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearKeyEnv(t)
			t.Setenv(EnvPrivateKey, testKeyHex)
			provider := New(&fakeSubmitter{err: tc.err})

			_, err := provider.SignAndSubmit(context.Background(), wallet.Payload{Value: "1"})
			submitErr, ok := wallet.AsSubmitError(err)
			if !ok || submitErr.Kind != tc.kind {
				t.Fatalf("error = %v, want kind %s", err, tc.kind)
			}
		})
	}
}

func TestDisconnectDropsKey(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv(EnvPrivateKey, testKeyHex)
	provider := New(&fakeSubmitter{})
	if _, err := provider.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := provider.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if provider.key != nil {
		t.Fatal("key survived disconnect")
	}

	// The key is lazily reloaded on the next signing request.
	if _, err := provider.SignAndSubmit(context.Background(), wallet.Payload{Value: "1"}); err != nil {
		t.Fatalf("SignAndSubmit after disconnect failed: %v", err)
	}
	if !strings.EqualFold(provider.address.Hex(), mustAddress(t).Hex()) {
		t.Fatalf("address = %s", provider.address.Hex())
	}
}

func mustAddress(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("parse test key: %v", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}
