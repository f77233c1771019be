package notifier

import "context"

// Notifier delivers alert messages to a chat channel.
type Notifier interface {
	Send(text string) error
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Noop discards all messages. Used when no Telegram token is
// configured, so scans still run and log locally.
type Noop struct{}

func (Noop) Send(string) error { return nil }
func (Noop) SendWithRetry(context.Context, string, int) error { return nil }
