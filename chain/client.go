// Package chain wraps the Solana RPC queries the payment flow needs: latest
// blockhash, account existence and transaction confirmation.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/easternfortune/phantompay/types"
)

// Client is the chain query surface consumed by the transaction builder and
// the payment orchestrator. Implementations must translate transport
// failures into *types.TransportError so the orchestrator can report them
// uniformly.
type Client interface {
	// LatestBlockhash fetches a fresh recent blockhash. Results must never
	// be cached across payment attempts; blockhashes expire.
	LatestBlockhash(ctx context.Context) (solana.Hash, error)

	// AccountExists reports whether the account exists on-chain. A
	// structured not-found is (false, nil); any other failure is an error
	// and must not be interpreted as absence.
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)

	// ConfirmTransaction waits until the signature reaches confirmed
	// commitment. An on-chain execution failure is types.ErrOnChainFailure;
	// never reaching confirmation within the polling window is an error as
	// well, since this flow has no way to resume confirmation later.
	ConfirmTransaction(ctx context.Context, signature solana.Signature) error
}

// RPCClient implements Client over a solana-go JSON-RPC connection.
type RPCClient struct {
	client       *rpc.Client
	pollInterval time.Duration
	pollAttempts int
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient connects to the given RPC endpoint.
func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		client:       rpc.New(endpoint),
		pollInterval: 2 * time.Second,
		pollAttempts: 30,
	}
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, &types.TransportError{Op: "get latest blockhash", Err: err}
	}
	return out.Value.Blockhash, nil
}

func (c *RPCClient) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := c.client.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, &types.TransportError{Op: "get account info", Err: err}
	}
	return true, nil
}

func (c *RPCClient) ConfirmTransaction(ctx context.Context, signature solana.Signature) error {
	for i := 0; i < c.pollAttempts; i++ {
		select {
		case <-ctx.Done():
			return &types.TransportError{Op: "confirm transaction", Err: ctx.Err()}
		case <-time.After(c.pollInterval):
		}

		out, err := c.client.GetSignatureStatuses(ctx, false, signature)
		if err != nil {
			// Transient RPC failures are retried until the attempts run out.
			continue
		}
		if len(out.Value) == 0 || out.Value[0] == nil {
			continue
		}

		status := out.Value[0]
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			if status.Err != nil {
				return fmt.Errorf("%w: %v", types.ErrOnChainFailure, status.Err)
			}
			return nil
		}
	}

	return &types.TransportError{
		Op:  "confirm transaction",
		Err: fmt.Errorf("signature %s not confirmed after %d attempts", signature, c.pollAttempts),
	}
}
