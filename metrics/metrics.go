// Package metrics defines the instrumentation seam for the payment flow.
package metrics

import "time"

// Recorder counts payment events and observes stage latencies. Label maps
// carry "stage" (connect, build, send, confirm) and "token".
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
