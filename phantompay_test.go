package phantompay_test

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/easternfortune/phantompay"
	"github.com/easternfortune/phantompay/types"
)

var (
	walletSender = solana.MustPublicKeyFromBase58("9aE476sH92Vz7DMPyq5WLPkrKWivxeuTKEFKd2sZZcde")
	walletSig    = base58.Encode(func() []byte {
		b := make([]byte, 64)
		for i := range b {
			b[i] = byte(i + 1)
		}
		return b
	}())
)

type fakeChain struct {
	mu             sync.Mutex
	blockhash      solana.Hash
	blockhashCalls int
	exists         bool
	confirmErr     error
	confirmed      []solana.Signature
}

func (f *fakeChain) LatestBlockhash(context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashCalls++
	return f.blockhash, nil
}

func (f *fakeChain) AccountExists(context.Context, solana.PublicKey) (bool, error) {
	return f.exists, nil
}

func (f *fakeChain) ConfirmTransaction(_ context.Context, sig solana.Signature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, sig)
	return nil
}

// fakeWallet plays the remote wallet: it receives outbound universal links
// through the Opener seam, performs the wallet side of the box protocol and
// answers by delivering redirect URLs back into the flow.
type fakeWallet struct {
	t   *testing.T
	cfg *types.Config

	deliver func(url string)

	pub    *[32]byte
	priv   *[32]byte
	secret [32]byte

	sessionToken string

	rejectConnect bool
	rejectSign    bool
	silentSign    bool
	dropConnData  bool

	mu           sync.Mutex
	connectCount int
	signCount    int
	lastTx       *solana.Transaction
}

func newFakeWallet(t *testing.T, cfg *types.Config) *fakeWallet {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &fakeWallet{
		t:            t,
		cfg:          cfg,
		pub:          pub,
		priv:         priv,
		sessionToken: "fortune-session-token",
	}
}

func (w *fakeWallet) OpenURL(_ context.Context, rawURL string) error {
	switch {
	case strings.HasPrefix(rawURL, w.cfg.ConnectURL):
		w.handleConnect(rawURL)
	case strings.HasPrefix(rawURL, w.cfg.SignAndSendURL):
		w.handleSignAndSend(rawURL)
	default:
		w.t.Fatalf("unexpected outbound url: %s", rawURL)
	}
	return nil
}

func (w *fakeWallet) seal(payload any) (data, nonce string) {
	msg, err := json.Marshal(payload)
	require.NoError(w.t, err)
	var n [24]byte
	_, err = rand.Read(n[:])
	require.NoError(w.t, err)
	sealed := box.SealAfterPrecomputation(nil, msg, &n, &w.secret)
	return base58.Encode(sealed), base58.Encode(n[:])
}

func (w *fakeWallet) open(data, nonce string, v any) {
	sealed, err := base58.Decode(data)
	require.NoError(w.t, err)
	nb, err := base58.Decode(nonce)
	require.NoError(w.t, err)
	var n [24]byte
	copy(n[:], nb)
	plain, ok := box.OpenAfterPrecomputation(nil, sealed, &n, &w.secret)
	require.True(w.t, ok, "wallet failed to decrypt dapp payload")
	require.NoError(w.t, json.Unmarshal(plain, v))
}

func (w *fakeWallet) handleConnect(rawURL string) {
	w.mu.Lock()
	w.connectCount++
	w.mu.Unlock()

	u, err := url.Parse(rawURL)
	require.NoError(w.t, err)
	q := u.Query()
	redirect := q.Get("redirect_link")
	require.NotEmpty(w.t, redirect)
	require.Equal(w.t, w.cfg.Cluster.String(), q.Get("cluster"))
	require.Equal(w.t, w.cfg.AppURL, q.Get("app_url"))

	if w.rejectConnect {
		w.deliver(redirect + "?errorCode=4001&errorMessage=" + url.QueryEscape("User rejected"))
		return
	}

	dappKey, err := base58.Decode(q.Get("dapp_encryption_public_key"))
	require.NoError(w.t, err)
	require.Len(w.t, dappKey, 32)
	var dappPub [32]byte
	copy(dappPub[:], dappKey)
	box.Precompute(&w.secret, &dappPub, w.priv)

	if w.dropConnData {
		w.deliver(redirect + "?phantom_encryption_public_key=" + base58.Encode(w.pub[:]))
		return
	}

	data, nonce := w.seal(types.ConnectPayload{
		PublicKey: walletSender.String(),
		Session:   w.sessionToken,
	})
	w.deliver(redirect +
		"?phantom_encryption_public_key=" + base58.Encode(w.pub[:]) +
		"&nonce=" + nonce +
		"&data=" + data)
}

func (w *fakeWallet) handleSignAndSend(rawURL string) {
	w.mu.Lock()
	w.signCount++
	w.mu.Unlock()

	if w.silentSign {
		return
	}

	u, err := url.Parse(rawURL)
	require.NoError(w.t, err)
	q := u.Query()
	redirect := q.Get("redirect_link")
	require.NotEmpty(w.t, redirect)

	if w.rejectSign {
		w.deliver(redirect + "?errorCode=4001&errorMessage=" + url.QueryEscape("User rejected"))
		return
	}

	var req types.SignRequestPayload
	w.open(q.Get("payload"), q.Get("nonce"), &req)
	require.Equal(w.t, w.sessionToken, req.Session, "session token must round-trip")

	txBytes, err := base58.Decode(req.Transaction)
	require.NoError(w.t, err)
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	require.NoError(w.t, err)
	w.mu.Lock()
	w.lastTx = tx
	w.mu.Unlock()

	data, nonce := w.seal(types.SignResponsePayload{Signature: walletSig})
	w.deliver(redirect + "?nonce=" + nonce + "&data=" + data)
}

func testBlockhash(t *testing.T) solana.Hash {
	t.Helper()
	h, err := solana.HashFromBase58("GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W")
	require.NoError(t, err)
	return h
}

func newFlow(t *testing.T, wallet *fakeWallet, chainClient *fakeChain, opts ...phantompay.Option) *phantompay.PhantomPay {
	t.Helper()
	opts = append([]phantompay.Option{phantompay.WithChainClient(chainClient)}, opts...)
	p, err := phantompay.New(wallet.cfg, wallet, opts...)
	require.NoError(t, err)
	wallet.deliver = p.Deliver
	return p
}

func TestExecutePaymentNativeSuccess(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	chainClient := &fakeChain{blockhash: testBlockhash(t), exists: true}
	p := newFlow(t, wallet, chainClient)

	result := p.ExecutePayment(context.Background(), types.TokenSOL)
	require.True(t, result.Success, "unexpected failure: %s", result.Error)
	require.Equal(t, walletSig, result.Signature)
	require.Empty(t, result.Error)

	require.NotNil(t, wallet.lastTx)
	require.Equal(t, walletSender, wallet.lastTx.Message.AccountKeys[0], "fee payer must be the connected sender")
	require.Len(t, wallet.lastTx.Message.Instructions, 1)
	require.Len(t, chainClient.confirmed, 1)
}

func TestExecutePaymentReusesSession(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	chainClient := &fakeChain{blockhash: testBlockhash(t), exists: true}
	p := newFlow(t, wallet, chainClient)

	first := p.ExecutePayment(context.Background(), types.TokenSOL)
	require.True(t, first.Success, first.Error)
	second := p.ExecutePayment(context.Background(), types.TokenUSDC)
	require.True(t, second.Success, second.Error)

	require.Equal(t, 1, wallet.connectCount, "second attempt must skip the connect roundtrip")
	require.Equal(t, 2, wallet.signCount)
	require.Equal(t, 2, chainClient.blockhashCalls, "blockhash must be fetched fresh per attempt")
}

func TestExecutePaymentConnectRejected(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	wallet.rejectConnect = true
	chainClient := &fakeChain{blockhash: testBlockhash(t)}
	p := newFlow(t, wallet, chainClient)

	result := p.ExecutePayment(context.Background(), types.TokenSOL)
	require.False(t, result.Success)
	require.Equal(t, "Phantom connect error: 4001 - User rejected", result.Error)
	require.Empty(t, result.Signature)
	require.Zero(t, chainClient.blockhashCalls, "no transaction may be built after a rejected connect")
	require.Zero(t, wallet.signCount)
}

func TestExecutePaymentSignRejected(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	wallet.rejectSign = true
	chainClient := &fakeChain{blockhash: testBlockhash(t), exists: true}
	p := newFlow(t, wallet, chainClient)

	result := p.ExecutePayment(context.Background(), types.TokenSOL)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "transaction rejected")
	require.Empty(t, chainClient.confirmed)
}

func TestExecutePaymentSignTimeout(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	wallet.silentSign = true
	chainClient := &fakeChain{blockhash: testBlockhash(t), exists: true}
	p := newFlow(t, wallet, chainClient, phantompay.WithTimeout(50*time.Millisecond))

	result := p.ExecutePayment(context.Background(), types.TokenSOL)
	require.False(t, result.Success)
	require.Equal(t, types.ErrTimeout.Error(), result.Error)
}

func TestExecutePaymentMissingConnectData(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	wallet.dropConnData = true
	chainClient := &fakeChain{blockhash: testBlockhash(t)}
	p := newFlow(t, wallet, chainClient)

	result := p.ExecutePayment(context.Background(), types.TokenSOL)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "missing connect response data")
}

func TestExecutePaymentOnChainFailure(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	chainClient := &fakeChain{
		blockhash:  testBlockhash(t),
		exists:     true,
		confirmErr: types.ErrOnChainFailure,
	}
	p := newFlow(t, wallet, chainClient)

	result := p.ExecutePayment(context.Background(), types.TokenSOL)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "failed on-chain")
	require.Empty(t, result.Signature, "a failed payment never carries a signature")
}

func TestExecutePaymentTokenCreatesDestinationAccount(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	chainClient := &fakeChain{blockhash: testBlockhash(t), exists: false}
	p := newFlow(t, wallet, chainClient)

	result := p.ExecutePayment(context.Background(), types.TokenUSDC)
	require.True(t, result.Success, result.Error)

	require.NotNil(t, wallet.lastTx)
	require.Len(t, wallet.lastTx.Message.Instructions, 2)
	first := wallet.lastTx.Message.AccountKeys[wallet.lastTx.Message.Instructions[0].ProgramIDIndex]
	second := wallet.lastTx.Message.AccountKeys[wallet.lastTx.Message.Instructions[1].ProgramIDIndex]
	require.Equal(t, solana.SPLAssociatedTokenAccountProgramID, first, "creation must come first")
	require.Equal(t, solana.TokenProgramID, second)
}

func TestExecutePaymentRejectsConcurrentAttempt(t *testing.T) {
	cfg := types.DefaultConfig()
	wallet := newFakeWallet(t, cfg)
	wallet.silentSign = true
	chainClient := &fakeChain{blockhash: testBlockhash(t), exists: true}
	p := newFlow(t, wallet, chainClient, phantompay.WithTimeout(200*time.Millisecond))

	done := make(chan *types.PaymentResult, 1)
	go func() {
		done <- p.ExecutePayment(context.Background(), types.TokenSOL)
	}()

	require.Eventually(t, func() bool {
		wallet.mu.Lock()
		defer wallet.mu.Unlock()
		return wallet.signCount > 0
	}, time.Second, 5*time.Millisecond)

	second := p.ExecutePayment(context.Background(), types.TokenSOL)
	require.False(t, second.Success)
	require.Equal(t, types.ErrPaymentInFlight.Error(), second.Error)

	first := <-done
	require.False(t, first.Success)
	require.Equal(t, types.ErrTimeout.Error(), first.Error)
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Tokens = nil
	_, err := phantompay.New(cfg, nil)
	require.Error(t, err)
}
