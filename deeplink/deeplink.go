// Package deeplink correlates outbound wallet URLs with the inbound deep
// links the wallet redirects back to the app. The host app routes every URL
// received on the registered custom scheme into Deliver; Roundtrip opens an
// outbound URL and waits for the first inbound URL matching a prefix.
package deeplink

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easternfortune/phantompay/logger"
	"github.com/easternfortune/phantompay/types"
)

// Opener launches a URL in the external handler, typically the platform's
// openURL facility which hands control to the wallet app.
type Opener interface {
	OpenURL(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) OpenURL(ctx context.Context, url string) error { return f(ctx, url) }

type waiter struct {
	id     string
	prefix string
	ch     chan string // buffered, single resolution
}

// Correlator matches inbound deep links to pending roundtrips by URL prefix.
// The orchestrator guarantees at most one pending roundtrip per prefix; the
// correlator itself only guarantees single resolution per roundtrip.
type Correlator struct {
	opener Opener
	log    logger.Logger

	mu      sync.Mutex
	waiters []*waiter
}

func NewCorrelator(opener Opener, log logger.Logger) *Correlator {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Correlator{opener: opener, log: log}
}

// Deliver routes an inbound deep link to the first pending roundtrip whose
// prefix matches the URL. Matching is case-sensitive on the full URL string;
// the matched waiter is deregistered before it is resolved so a later URL
// can never resolve it twice. Non-matching URLs are dropped.
func (c *Correlator) Deliver(url string) {
	c.mu.Lock()
	var target *waiter
	for i, w := range c.waiters {
		if strings.HasPrefix(url, w.prefix) {
			target = w
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	if target == nil {
		c.log.Debug("deeplink ignored", map[string]any{"url_prefix": prefixOf(url)})
		return
	}
	target.ch <- url
}

// Roundtrip opens outboundURL in the external handler and blocks until the
// first inbound URL matching redirectPrefix arrives, the timeout elapses
// (types.ErrTimeout), or ctx is cancelled. The waiter registration is
// released on every path.
func (c *Correlator) Roundtrip(ctx context.Context, outboundURL, redirectPrefix string, timeout time.Duration) (string, error) {
	w := &waiter{
		id:     uuid.NewString(),
		prefix: redirectPrefix,
		ch:     make(chan string, 1),
	}

	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	c.log.Debug("roundtrip started", map[string]any{
		"roundtrip": w.id,
		"prefix":    redirectPrefix,
		"timeout":   timeout.String(),
	})

	if err := c.opener.OpenURL(ctx, outboundURL); err != nil {
		c.remove(w)
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case url := <-w.ch:
		c.log.Debug("roundtrip resolved", map[string]any{"roundtrip": w.id})
		return url, nil
	case <-timer.C:
		c.remove(w)
		c.log.Warn("roundtrip timed out", map[string]any{"roundtrip": w.id, "prefix": redirectPrefix})
		return "", types.ErrTimeout
	case <-ctx.Done():
		c.remove(w)
		return "", ctx.Err()
	}
}

// remove deregisters a waiter if it is still pending. Deliver may have
// already removed it and parked the URL in the buffered channel; that URL is
// simply discarded with the waiter.
func (c *Correlator) remove(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cand := range c.waiters {
		if cand == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Pending returns the number of registered waiters.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// prefixOf trims a URL for logging so query parameters carrying encrypted
// material never reach the logs.
func prefixOf(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
