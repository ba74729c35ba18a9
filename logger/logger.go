// Package logger defines the logging seam for the payment flow. The zero
// value of the library logs nothing; callers opt in with NewZapLogger.
package logger

// Logger is the minimal structured logging contract used across the
// payment flow. Field maps must never contain key material, ciphertext or
// session tokens.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything. It is the default.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
