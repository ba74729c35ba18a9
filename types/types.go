// Package types holds the shared domain model for the phantompay library:
// payment tokens, the static token table, configuration, wire payload shapes
// and the error taxonomy.
package types

import (
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Token identifies one of the fixed set of payment assets.
type Token string

const (
	TokenSOL  Token = "SOL"
	TokenUSDC Token = "USDC"
	TokenSKR  Token = "SKR"
	TokenPOOP Token = "POOP"
)

func (t Token) String() string { return string(t) }

// IsNative reports whether the token is the chain's native asset.
func (t Token) IsNative() bool { return t == TokenSOL }

// Cluster names the target Solana network cluster.
type Cluster string

const (
	ClusterMainnetBeta Cluster = "mainnet-beta"
	ClusterDevnet      Cluster = "devnet"
	ClusterTestnet     Cluster = "testnet"
)

func (c Cluster) String() string { return string(c) }

// TokenInfo describes one entry of the static token table. Amount is the
// human-readable price; RawAmount is the same price precomputed in the
// token's smallest unit so no decimal conversion happens at payment time.
type TokenInfo struct {
	// Mint is nil for the native asset.
	Mint      *solana.PublicKey `validate:"-"`
	Decimals  uint8             `validate:"lte=18"`
	Amount    decimal.Decimal
	RawAmount uint64 `validate:"gt=0"`
}

// PaymentResult is the terminal outcome of one payment attempt. It is never
// partially filled: either Success with a Signature, or failure with Error.
type PaymentResult struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WalletSession is the state established by a successful connect roundtrip
// and reused by later roundtrips within the same process.
type WalletSession struct {
	RemotePublicKey solana.PublicKey
	SessionToken    string
}

// ConnectPayload is the decrypted body of the wallet's connect response.
type ConnectPayload struct {
	PublicKey string `json:"public_key"`
	Session   string `json:"session"`
}

// SignRequestPayload is encrypted and sent with the sign-and-send roundtrip.
type SignRequestPayload struct {
	Transaction string `json:"transaction"`
	Session     string `json:"session"`
}

// SignResponsePayload is the decrypted body of the wallet's sign-and-send
// response.
type SignResponsePayload struct {
	Signature string `json:"signature"`
}
