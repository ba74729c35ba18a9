package phantompay

import (
	"time"

	"github.com/easternfortune/phantompay/chain"
	"github.com/easternfortune/phantompay/logger"
	"github.com/easternfortune/phantompay/metrics"
)

type Option func(*PhantomPay)

func WithLogger(l logger.Logger) Option {
	return func(p *PhantomPay) {
		p.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *PhantomPay) {
		p.metrics = r
	}
}

// WithTimeout overrides the per-roundtrip wallet response window.
func WithTimeout(t time.Duration) Option {
	return func(p *PhantomPay) {
		p.timeout = t
	}
}

// WithChainClient swaps the RPC-backed chain client, primarily for tests.
func WithChainClient(c chain.Client) Option {
	return func(p *PhantomPay) {
		p.chain = c
	}
}
