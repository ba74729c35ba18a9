// Package session manages the encrypted wallet session: the dapp's ephemeral
// x25519 keypair, the shared secret derived from the wallet's session key,
// and authenticated encryption of the JSON payloads exchanged over deep
// links. The wire format is NaCl box with base58 text encoding, matching
// what the wallet expects.
package session

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/box"

	"github.com/easternfortune/phantompay/types"
)

// NonceSize is the NaCl box nonce length. A fresh random nonce is generated
// per Encrypt call and must travel alongside the ciphertext.
const NonceSize = 24

// Keypair is the dapp's encryption keypair. It lives for the process
// lifetime and is never persisted.
type Keypair struct {
	Public *[32]byte
	Secret *[32]byte
}

// PublicKeyBase58 returns the base58 encoding of the public key, the form
// used in outbound wallet URLs.
func (k Keypair) PublicKeyBase58() string {
	return base58.Encode(k.Public[:])
}

// Manager owns the keypair and shared secret for one wallet session. All
// methods are safe for concurrent use, though the payment flow itself is
// strictly sequential.
type Manager struct {
	mu      sync.Mutex
	keypair *Keypair
	secret  *[32]byte
	wallet  *types.WalletSession
}

func NewManager() *Manager {
	return &Manager{}
}

// Keypair returns the cached keypair, generating it on first use.
func (m *Manager) Keypair() (Keypair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keypairLocked()
}

func (m *Manager) keypairLocked() (Keypair, error) {
	if m.keypair == nil {
		pub, sec, err := box.GenerateKey(rand.Reader)
		if err != nil {
			return Keypair{}, fmt.Errorf("generate keypair: %w", err)
		}
		m.keypair = &Keypair{Public: pub, Secret: sec}
	}
	return *m.keypair, nil
}

// DeriveSharedSecret computes and caches the box precomputation of the
// remote session public key and our secret key, overwriting any prior
// secret.
func (m *Manager) DeriveSharedSecret(remotePublicKey []byte) error {
	if len(remotePublicKey) != 32 {
		return fmt.Errorf("remote public key must be 32 bytes, got %d", len(remotePublicKey))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kp, err := m.keypairLocked()
	if err != nil {
		return err
	}
	var remote [32]byte
	copy(remote[:], remotePublicKey)
	secret := new([32]byte)
	box.Precompute(secret, &remote, kp.Secret)
	m.secret = secret
	return nil
}

// SetWallet stores the session established by a successful connect.
func (m *Manager) SetWallet(ws types.WalletSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallet = &ws
}

// Wallet returns the cached wallet session, if any.
func (m *Manager) Wallet() (types.WalletSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wallet == nil || m.secret == nil {
		return types.WalletSession{}, false
	}
	return *m.wallet, true
}

// Reset drops the shared secret and wallet session. The keypair survives;
// it is scoped to the process, not the session.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secret = nil
	m.wallet = nil
}

// Encrypt serializes payload to JSON and seals it with the shared secret
// under a fresh random nonce. It returns the base58 ciphertext and the
// base58 nonce. Fails with ErrNoSession before DeriveSharedSecret.
func (m *Manager) Encrypt(payload any) (cipherText, nonce string, err error) {
	m.mu.Lock()
	secret := m.secret
	m.mu.Unlock()
	if secret == nil {
		return "", "", types.ErrNoSession
	}

	msg, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("marshal payload: %w", err)
	}

	var n [NonceSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := box.SealAfterPrecomputation(nil, msg, &n, secret)
	return base58.Encode(sealed), base58.Encode(n[:]), nil
}

// Decrypt opens base58 ciphertext under the given base58 nonce and
// unmarshals the plaintext JSON into v. Authentication failure is
// ErrDecryptionFailed, never silently empty data.
func (m *Manager) Decrypt(cipherText, nonce string, v any) error {
	m.mu.Lock()
	secret := m.secret
	m.mu.Unlock()
	if secret == nil {
		return types.ErrNoSession
	}

	sealed, err := base58.Decode(cipherText)
	if err != nil {
		return fmt.Errorf("decode ciphertext: %w", err)
	}
	nonceBytes, err := base58.Decode(nonce)
	if err != nil {
		return fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonceBytes) != NonceSize {
		return fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonceBytes))
	}

	var n [NonceSize]byte
	copy(n[:], nonceBytes)

	plain, ok := box.OpenAfterPrecomputation(nil, sealed, &n, secret)
	if !ok {
		return types.ErrDecryptionFailed
	}
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
