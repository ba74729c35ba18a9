// Package phantompay implements a fixed-price in-app payment flow that
// delegates signing to the Phantom wallet over an encrypted deep-link
// protocol and confirms the resulting transaction on-chain before reporting
// success.
package phantompay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/easternfortune/phantompay/chain"
	"github.com/easternfortune/phantompay/deeplink"
	"github.com/easternfortune/phantompay/logger"
	"github.com/easternfortune/phantompay/metrics"
	"github.com/easternfortune/phantompay/session"
	"github.com/easternfortune/phantompay/txbuilder"
	"github.com/easternfortune/phantompay/types"
)

// PhantomPay sequences one payment attempt: connect, build, encrypt-and-send,
// confirm. Every failure in any stage folds into the returned PaymentResult;
// no error crosses the ExecutePayment boundary.
type PhantomPay struct {
	cfg     *types.Config
	session *session.Manager
	link    *deeplink.Correlator
	builder *txbuilder.Builder
	chain   chain.Client
	log     logger.Logger
	metrics metrics.Recorder
	timeout time.Duration

	mu       sync.Mutex
	inFlight bool
}

// New builds a payment flow for the given configuration and URL opener. The
// opener hands outbound URLs to the platform; inbound deep links must be
// routed into Deliver.
func New(cfg *types.Config, opener deeplink.Opener, opts ...Option) (*PhantomPay, error) {
	if cfg == nil {
		cfg = types.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &PhantomPay{
		cfg:     cfg,
		session: session.NewManager(),
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		timeout: cfg.RoundtripTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.chain == nil {
		p.chain = chain.NewRPCClient(cfg.RPCEndpoint)
	}
	p.link = deeplink.NewCorrelator(opener, p.log)
	p.builder = txbuilder.New(cfg, p.chain)
	return p, nil
}

// Deliver routes an inbound deep link into the flow. The host app calls this
// for every URL received on the registered custom scheme.
func (p *PhantomPay) Deliver(url string) {
	p.link.Deliver(url)
}

// ExecutePayment runs one complete payment attempt for tok. It is the only
// public entry point and always returns a terminal result: success with a
// signature, or failure with a human-readable error. There is no automatic
// retry; callers re-invoke after a failure. Concurrent attempts are
// rejected.
func (p *PhantomPay) ExecutePayment(ctx context.Context, tok types.Token) *types.PaymentResult {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return failure(types.ErrPaymentInFlight)
	}
	p.inFlight = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	sig, err := p.execute(ctx, tok)
	if err != nil {
		p.log.Error("payment failed", map[string]any{"token": tok.String(), "error": err.Error()})
		p.metrics.IncCounter("payment_failed", map[string]string{"token": tok.String()})
		return failure(err)
	}

	p.log.Info("payment confirmed", map[string]any{"token": tok.String(), "signature": sig})
	p.metrics.IncCounter("payment_succeeded", map[string]string{"token": tok.String()})
	return &types.PaymentResult{Success: true, Signature: sig}
}

func (p *PhantomPay) execute(ctx context.Context, tok types.Token) (string, error) {
	sender, err := p.timed(ctx, "connect", tok, p.connect)
	if err != nil {
		return "", err
	}

	start := time.Now()
	tx, err := p.builder.BuildTransfer(ctx, sender, tok)
	if err != nil {
		return "", err
	}
	p.metrics.ObserveLatency("build", time.Since(start), map[string]string{"token": tok.String()})

	sig, err := p.signAndSend(ctx, tx, tok)
	if err != nil {
		return "", err
	}

	start = time.Now()
	if err := p.chain.ConfirmTransaction(ctx, sig); err != nil {
		return "", err
	}
	p.metrics.ObserveLatency("confirm", time.Since(start), map[string]string{"token": tok.String()})

	return sig.String(), nil
}

// connect performs the connect roundtrip, or returns the cached sender when
// a wallet session already exists.
func (p *PhantomPay) connect(ctx context.Context) (solana.PublicKey, error) {
	if ws, ok := p.session.Wallet(); ok {
		p.log.Debug("reusing wallet session", nil)
		return ws.RemotePublicKey, nil
	}

	kp, err := p.session.Keypair()
	if err != nil {
		return solana.PublicKey{}, err
	}

	redirect := p.redirectLink("onConnect")
	params := url.Values{}
	params.Set("dapp_encryption_public_key", kp.PublicKeyBase58())
	params.Set("cluster", p.cfg.Cluster.String())
	params.Set("app_url", p.cfg.AppURL)
	params.Set("redirect_link", redirect)

	responseURL, err := p.link.Roundtrip(ctx, p.cfg.ConnectURL+"?"+params.Encode(), redirect, p.timeout)
	if err != nil {
		return solana.PublicKey{}, err
	}

	q, err := queryOf(responseURL)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if code := q.Get("errorCode"); code != "" {
		return solana.PublicKey{}, &types.WalletRejectedError{
			Stage:   "connect",
			Code:    code,
			Message: q.Get("errorMessage"),
		}
	}

	remoteKey := q.Get("phantom_encryption_public_key")
	nonce := q.Get("nonce")
	data := q.Get("data")
	if remoteKey == "" || nonce == "" || data == "" {
		return solana.PublicKey{}, errors.New("missing connect response data")
	}

	remoteKeyBytes, err := base58.Decode(remoteKey)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("decode wallet encryption key: %w", err)
	}
	if err := p.session.DeriveSharedSecret(remoteKeyBytes); err != nil {
		return solana.PublicKey{}, err
	}

	var payload types.ConnectPayload
	if err := p.session.Decrypt(data, nonce, &payload); err != nil {
		return solana.PublicKey{}, err
	}

	sender, err := solana.PublicKeyFromBase58(payload.PublicKey)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parse wallet public key: %w", err)
	}

	p.session.SetWallet(types.WalletSession{
		RemotePublicKey: sender,
		SessionToken:    payload.Session,
	})
	p.log.Info("wallet connected", map[string]any{"sender": sender.String()})
	return sender, nil
}

// signAndSend serializes the unsigned transaction, encrypts it together with
// the session token under a fresh nonce, performs the sign-and-send
// roundtrip and decrypts the resulting signature.
func (p *PhantomPay) signAndSend(ctx context.Context, tx *solana.Transaction, tok types.Token) (solana.Signature, error) {
	start := time.Now()

	ws, ok := p.session.Wallet()
	if !ok {
		return solana.Signature{}, types.ErrNoSession
	}

	serialized, err := serializeUnsigned(tx)
	if err != nil {
		return solana.Signature{}, err
	}

	cipherText, nonce, err := p.session.Encrypt(types.SignRequestPayload{
		Transaction: base58.Encode(serialized),
		Session:     ws.SessionToken,
	})
	if err != nil {
		return solana.Signature{}, err
	}

	kp, err := p.session.Keypair()
	if err != nil {
		return solana.Signature{}, err
	}

	redirect := p.redirectLink("onSignAndSend")
	params := url.Values{}
	params.Set("dapp_encryption_public_key", kp.PublicKeyBase58())
	params.Set("nonce", nonce)
	params.Set("redirect_link", redirect)
	params.Set("payload", cipherText)

	responseURL, err := p.link.Roundtrip(ctx, p.cfg.SignAndSendURL+"?"+params.Encode(), redirect, p.timeout)
	if err != nil {
		return solana.Signature{}, err
	}

	q, err := queryOf(responseURL)
	if err != nil {
		return solana.Signature{}, err
	}
	if code := q.Get("errorCode"); code != "" {
		return solana.Signature{}, &types.WalletRejectedError{
			Stage:   "signAndSendTransaction",
			Code:    code,
			Message: q.Get("errorMessage"),
		}
	}

	respNonce := q.Get("nonce")
	respData := q.Get("data")
	if respNonce == "" || respData == "" {
		return solana.Signature{}, errors.New("missing transaction response data")
	}

	var payload types.SignResponsePayload
	if err := p.session.Decrypt(respData, respNonce, &payload); err != nil {
		return solana.Signature{}, err
	}

	sig, err := solana.SignatureFromBase58(payload.Signature)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("parse transaction signature: %w", err)
	}

	p.metrics.ObserveLatency("send", time.Since(start), map[string]string{"token": tok.String()})
	return sig, nil
}

func (p *PhantomPay) redirectLink(path string) string {
	return p.cfg.RedirectScheme + "://" + path
}

// timed wraps a stage with latency recording.
func (p *PhantomPay) timed(ctx context.Context, stage string, tok types.Token, fn func(context.Context) (solana.PublicKey, error)) (solana.PublicKey, error) {
	start := time.Now()
	out, err := fn(ctx)
	if err != nil {
		return solana.PublicKey{}, err
	}
	p.metrics.ObserveLatency(stage, time.Since(start), map[string]string{"token": tok.String()})
	return out, nil
}

// serializeUnsigned renders the transaction in wire format with zeroed
// placeholder signatures, matching a serialization that does not require
// signatures. The wallet fills the signatures in.
func serializeUnsigned(tx *solana.Transaction) ([]byte, error) {
	if len(tx.Signatures) == 0 {
		tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	}
	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return out, nil
}

func queryOf(rawURL string) (url.Values, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect url: %w", err)
	}
	return u.Query(), nil
}

func failure(err error) *types.PaymentResult {
	return &types.PaymentResult{Success: false, Error: err.Error()}
}
