package registry

import (
	"strings"
	"testing"
)

func TestTokenBySymbol(t *testing.T) {
	cases := []struct {
		name    string
		chainID int64
		symbol  string
		want    string
		found   bool
	}{
		{"mainnet usdc", 1, "USDC", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", true},
		{"case insensitive", 1, "usdc", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", true},
		{"whitespace trimmed", 1, "  dai ", "0x6B175474E89094C44Da98b954EedeAC495271d0F", true},
		{"base usdc differs from mainnet", 8453, "USDC", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", true},
		{"unknown symbol", 1, "DOGE", "", false},
		{"unknown chain", 999, "ETH", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, ok := TokenBySymbol(tc.chainID, tc.symbol)
			if ok != tc.found {
				t.Fatalf("found = %v, want %v", ok, tc.found)
			}
			if token.Address != tc.want {
				t.Fatalf("address = %s, want %s", token.Address, tc.want)
			}
		})
	}
}

func TestNativeToken(t *testing.T) {
	for _, chainID := range []int64{1, 10, 8453, 42161} {
		token, ok := NativeToken(chainID)
		if !ok {
			t.Fatalf("no native token for chain %d", chainID)
		}
		if !token.Native || token.Symbol != "ETH" || token.Address != "" {
			t.Fatalf("chain %d native token = %+v", chainID, token)
		}
	}
	if _, ok := NativeToken(999); ok {
		t.Fatal("unexpected native token for unknown chain")
	}
}

func TestResolveRPCURL(t *testing.T) {
	url, err := ResolveRPCURL("", 8453)
	if err != nil {
		t.Fatalf("ResolveRPCURL failed: %v", err)
	}
	if url != "https://mainnet.base.org" {
		t.Fatalf("url = %s", url)
	}

	url, err = ResolveRPCURL("  http://localhost:8545  ", 999)
	if err != nil {
		t.Fatalf("ResolveRPCURL with override failed: %v", err)
	}
	if url != "http://localhost:8545" {
		t.Fatalf("override url = %s", url)
	}

	_, err = ResolveRPCURL("", 999)
	if err == nil || !strings.Contains(err.Error(), "--rpc-url") {
		t.Fatalf("error = %v, want rpc-url hint", err)
	}
}
