package registry

import "strings"

// Token describes an asset the balance reader and payload builder can
// resolve. Native assets have no contract address.
type Token struct {
	Symbol   string
	Address  string
	Decimals int
	Native   bool
}

// Known tokens by chain id. The allow-list in the risk config is free-form;
// this table only matters for resolving balances and building transfers.
var tokensByChainID = map[int64]map[string]Token{
	1: {
		"ETH":  {Symbol: "ETH", Decimals: 18, Native: true},
		"USDC": {Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
	},
	10: {
		"ETH":  {Symbol: "ETH", Decimals: 18, Native: true},
		"USDC": {Symbol: "USDC", Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
	},
	8453: {
		"ETH":  {Symbol: "ETH", Decimals: 18, Native: true},
		"USDC": {Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
	},
	42161: {
		"ETH":  {Symbol: "ETH", Decimals: 18, Native: true},
		"USDC": {Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
	},
}

func TokenBySymbol(chainID int64, symbol string) (Token, bool) {
	tokens, ok := tokensByChainID[chainID]
	if !ok {
		return Token{}, false
	}
	token, ok := tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	return token, ok
}

// NativeToken returns the chain's native asset, if the chain is known.
func NativeToken(chainID int64) (Token, bool) {
	tokens, ok := tokensByChainID[chainID]
	if !ok {
		return Token{}, false
	}
	for _, token := range tokens {
		if token.Native {
			return token, true
		}
	}
	return Token{}, false
}
