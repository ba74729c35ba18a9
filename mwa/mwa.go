// Package mwa implements the platform wallet-authorization payment path: a
// short-lived wallet session opened through a system-mediated transact call,
// converging on the same payment result contract as the deep-link flow.
//
// The wallet returns addresses and signatures in heterogeneous wire shapes
// (base64 text or raw byte arrays depending on platform); this package
// normalizes them at the boundary before any payment logic runs.
package mwa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/easternfortune/phantompay/chain"
	"github.com/easternfortune/phantompay/logger"
	"github.com/easternfortune/phantompay/metrics"
	"github.com/easternfortune/phantompay/txbuilder"
	"github.com/easternfortune/phantompay/types"
)

// AppIdentity identifies the dapp to the wallet during authorization.
type AppIdentity struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
	Icon string `json:"icon"`
}

// AuthorizeRequest asks the wallet for signing authority on a cluster.
type AuthorizeRequest struct {
	Cluster  types.Cluster `json:"cluster"`
	Identity AppIdentity   `json:"identity"`
}

// Address is the wallet's account address in whichever wire shape the
// platform produced. UnmarshalJSON accepts base64 text or a raw byte array
// and normalizes to a canonical public key.
type Address struct {
	key solana.PublicKey
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		raw, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return fmt.Errorf("decode base64 address: %w", err)
		}
		return a.setBytes(raw)
	}

	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return fmt.Errorf("address is neither base64 text nor a byte array")
	}
	raw := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("address byte %d out of range: %d", i, n)
		}
		raw[i] = byte(n)
	}
	return a.setBytes(raw)
}

func (a *Address) setBytes(raw []byte) error {
	if len(raw) != solana.PublicKeyLength {
		return fmt.Errorf("address must be %d bytes, got %d", solana.PublicKeyLength, len(raw))
	}
	a.key = solana.PublicKeyFromBytes(raw)
	return nil
}

// PublicKey returns the normalized canonical form.
func (a Address) PublicKey() solana.PublicKey { return a.key }

// Account is one authorized wallet account.
type Account struct {
	Address Address `json:"address"`
}

// AuthorizeResult is the wallet's answer to an AuthorizeRequest.
type AuthorizeResult struct {
	Accounts []Account `json:"accounts"`
}

// Signature is a transaction signature in whichever shape the wallet
// returned it: base58 text or raw bytes.
type Signature struct {
	Text string
	Raw  []byte
}

// Base58 normalizes the signature to base58 text.
func (s Signature) Base58() (string, error) {
	if s.Text != "" {
		return s.Text, nil
	}
	if len(s.Raw) > 0 {
		return base58.Encode(s.Raw), nil
	}
	return "", errors.New("no transaction signature returned")
}

// Wallet is the in-session surface of the remote wallet.
type Wallet interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
	SignAndSendTransactions(ctx context.Context, txs []*solana.Transaction) ([]Signature, error)
}

// Transactor opens a short-lived wallet session and runs fn inside it. The
// session ends when fn returns; platform bindings implement this over the
// system's transact facility.
type Transactor interface {
	Transact(ctx context.Context, fn func(ctx context.Context, w Wallet) error) error
}

// Flow is the wallet-adapter counterpart of the deep-link payment flow.
type Flow struct {
	cfg        *types.Config
	identity   AppIdentity
	transactor Transactor
	builder    *txbuilder.Builder
	chain      chain.Client
	log        logger.Logger
	metrics    metrics.Recorder
}

func NewFlow(cfg *types.Config, identity AppIdentity, transactor Transactor, chainClient chain.Client, log logger.Logger, rec metrics.Recorder) (*Flow, error) {
	if cfg == nil {
		cfg = types.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if chainClient == nil {
		chainClient = chain.NewRPCClient(cfg.RPCEndpoint)
	}
	return &Flow{
		cfg:        cfg,
		identity:   identity,
		transactor: transactor,
		builder:    txbuilder.New(cfg, chainClient),
		chain:      chainClient,
		log:        log,
		metrics:    rec,
	}, nil
}

// ExecutePayment authorizes, builds, signs-and-sends and confirms a payment
// inside one wallet session. The result contract matches the deep-link
// flow: terminal, never partially filled.
func (f *Flow) ExecutePayment(ctx context.Context, tok types.Token) *types.PaymentResult {
	start := time.Now()

	var walletSig Signature
	err := f.transactor.Transact(ctx, func(ctx context.Context, w Wallet) error {
		auth, err := w.Authorize(ctx, AuthorizeRequest{
			Cluster:  f.cfg.Cluster,
			Identity: f.identity,
		})
		if err != nil {
			return err
		}
		if len(auth.Accounts) == 0 {
			return errors.New("wallet authorized no accounts")
		}
		sender := auth.Accounts[0].Address.PublicKey()

		tx, err := f.builder.BuildTransfer(ctx, sender, tok)
		if err != nil {
			return err
		}

		sigs, err := w.SignAndSendTransactions(ctx, []*solana.Transaction{tx})
		if err != nil {
			return err
		}
		if len(sigs) == 0 {
			return errors.New("no transaction signature returned")
		}
		walletSig = sigs[0]
		return nil
	})
	if err != nil {
		return f.fail(tok, err)
	}

	encoded, err := walletSig.Base58()
	if err != nil {
		return f.fail(tok, err)
	}
	sig, err := solana.SignatureFromBase58(encoded)
	if err != nil {
		return f.fail(tok, fmt.Errorf("parse transaction signature: %w", err))
	}

	if err := f.chain.ConfirmTransaction(ctx, sig); err != nil {
		return f.fail(tok, err)
	}

	f.metrics.ObserveLatency("mwa_payment", time.Since(start), map[string]string{"token": tok.String()})
	f.metrics.IncCounter("payment_succeeded", map[string]string{"token": tok.String()})
	f.log.Info("payment confirmed", map[string]any{"token": tok.String(), "signature": sig.String()})
	return &types.PaymentResult{Success: true, Signature: sig.String()}
}

func (f *Flow) fail(tok types.Token, err error) *types.PaymentResult {
	f.log.Error("payment failed", map[string]any{"token": tok.String(), "error": err.Error()})
	f.metrics.IncCounter("payment_failed", map[string]string{"token": tok.String()})
	return &types.PaymentResult{Success: false, Error: err.Error()}
}
