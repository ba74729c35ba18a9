package types

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config is the static configuration for a payment flow. DefaultConfig
// returns the production values; override fields before passing to New.
type Config struct {
	// AppURL identifies the dapp to the wallet on connect.
	AppURL string `validate:"required,url"`

	// RedirectScheme is the custom URI scheme the host app registered for
	// inbound deep links, without the "://" suffix.
	RedirectScheme string `validate:"required,alphanum"`

	// ConnectURL and SignAndSendURL are the wallet's universal-link
	// endpoints for the two roundtrip kinds.
	ConnectURL     string `validate:"required,url"`
	SignAndSendURL string `validate:"required,url"`

	Cluster     Cluster `validate:"required,oneof=mainnet-beta devnet testnet"`
	RPCEndpoint string  `validate:"required,url"`

	// RevenueWallet receives all transfers.
	RevenueWallet solana.PublicKey `validate:"-"`

	// Tokens is the supported asset table keyed by token symbol.
	Tokens map[Token]TokenInfo `validate:"required,min=1,dive"`

	// RoundtripTimeout bounds each wallet roundtrip.
	RoundtripTimeout time.Duration `validate:"gt=0"`
}

// Validate checks the configuration using struct tags plus the cross-field
// rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RevenueWallet.IsZero() {
		return fmt.Errorf("invalid config: revenue wallet is required")
	}
	for tok, info := range c.Tokens {
		if tok.IsNative() && info.Mint != nil {
			return fmt.Errorf("invalid config: native token %s must not have a mint", tok)
		}
		if !tok.IsNative() && info.Mint == nil {
			return fmt.Errorf("invalid config: token %s requires a mint", tok)
		}
	}
	return nil
}

// TokenInfo returns the table entry for tok or ErrUnsupportedToken.
func (c *Config) TokenInfo(tok Token) (TokenInfo, error) {
	info, ok := c.Tokens[tok]
	if !ok {
		return TokenInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, tok)
	}
	return info, nil
}
