// Package bridge translates between the embedded content view's JSON
// envelopes and native payment execution. The view posts a PAYMENT_REQUEST
// with a token symbol; the bridge runs the payment and answers with a
// PAYMENT_RESPONSE mirroring the payment result.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/easternfortune/phantompay/logger"
	"github.com/easternfortune/phantompay/types"
)

const (
	TypePaymentRequest  = "PAYMENT_REQUEST"
	TypePaymentResponse = "PAYMENT_RESPONSE"
)

// Payer executes one payment attempt. Both the deep-link flow and the
// wallet-adapter flow satisfy this.
type Payer interface {
	ExecutePayment(ctx context.Context, tok types.Token) *types.PaymentResult
}

// Request is the inbound envelope posted by the embedded view.
type Request struct {
	Type      string      `json:"type"`
	Token     types.Token `json:"token,omitempty"`
	Action    string      `json:"action,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// Response is the outbound envelope injected back into the view.
type Response struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Bridge struct {
	payer Payer
	log   logger.Logger
}

func New(payer Payer, log logger.Logger) *Bridge {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Bridge{payer: payer, log: log}
}

// HandleMessage processes one raw envelope from the view. It returns the
// serialized response for a payment request, nil for envelope types this
// bridge does not handle, and an error for malformed input.
func (b *Bridge) HandleMessage(ctx context.Context, raw []byte) ([]byte, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("parse bridge message: %w", err)
	}

	if req.Type != TypePaymentRequest || req.Token == "" {
		b.log.Debug("bridge message ignored", map[string]any{"type": req.Type})
		return nil, nil
	}

	result := b.payer.ExecutePayment(ctx, req.Token)

	resp := Response{
		Type:      TypePaymentResponse,
		Success:   result.Success,
		Signature: result.Signature,
		Error:     result.Error,
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode bridge response: %w", err)
	}
	return out, nil
}
