package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Production token table. Raw amounts are precomputed in each asset's
// smallest unit so payment-time code never converts decimals.
var (
	usdcMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	skrMint  = solana.MustPublicKeyFromBase58("SKRbvo6Gf7GondiT3BbTfuRDPqLWei4j2Qy2NPGZhW3")
	poopMint = solana.MustPublicKeyFromBase58("5VfRK4fgsDAsV9ajNE8qDMdhUvDueRTtRcACv2zKg5ST")
)

// DefaultConfig returns the production payment configuration.
func DefaultConfig() *Config {
	return &Config{
		AppURL:         "https://saju2026.com",
		RedirectScheme: "easternfortune",
		ConnectURL:     "https://phantom.app/ul/v1/connect",
		SignAndSendURL: "https://phantom.app/ul/v1/signAndSendTransaction",
		Cluster:        ClusterMainnetBeta,
		RPCEndpoint:    "https://api.mainnet-beta.solana.com",
		RevenueWallet:  solana.MustPublicKeyFromBase58("JEU5P2A5KqjfMzgwBdtoVYzv81tDHjDAXwrSN7wLQDQ"),
		Tokens: map[Token]TokenInfo{
			TokenSOL: {
				Mint:      nil, // native SOL
				Decimals:  9,
				Amount:    decimal.RequireFromString("0.005"),
				RawAmount: 5_000_000,
			},
			TokenUSDC: {
				Mint:      &usdcMint,
				Decimals:  6,
				Amount:    decimal.RequireFromString("1.00"),
				RawAmount: 1_000_000,
			},
			TokenSKR: {
				Mint:      &skrMint,
				Decimals:  6,
				Amount:    decimal.RequireFromString("15"),
				RawAmount: 15_000_000,
			},
			TokenPOOP: {
				Mint:      &poopMint,
				Decimals:  0,
				Amount:    decimal.RequireFromString("50"),
				RawAmount: 50,
			},
		},
		RoundtripTimeout: 2 * time.Minute,
	}
}
