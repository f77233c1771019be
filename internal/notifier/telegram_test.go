package notifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

// failingTransport fails every request and counts the attempts.
type failingTransport struct {
	calls int
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func newFailingNotifier() (*TelegramNotifier, *failingTransport) {
	transport := &failingTransport{}
	return &TelegramNotifier{
		BotToken: "test-token",
		ChatID:   "12345",
		Client:   &http.Client{Transport: transport},
	}, transport
}

func TestSendWithRetryReturnsImmediatelyAfterLastAttempt(t *testing.T) {
	notifier, transport := newFailingNotifier()

	started := time.Now()
	err := notifier.SendWithRetry(context.Background(), "hello", 0)
	elapsed := time.Since(started)

	if err == nil {
		t.Fatal("Expected error when every attempt fails")
	}
	if transport.calls != 1 {
		t.Errorf("Expected exactly 1 attempt with no retries, got %d", transport.calls)
	}
	// With zero retries there is nothing to wait for.
	if elapsed > 500*time.Millisecond {
		t.Errorf("SendWithRetry slept after the final attempt: took %v", elapsed)
	}
	if !strings.Contains(err.Error(), "all 1 retries exhausted") {
		t.Errorf("Expected exhaustion error, got: %v", err)
	}
}

func TestSendWithRetryRetriesThenGivesUp(t *testing.T) {
	notifier, transport := newFailingNotifier()

	started := time.Now()
	err := notifier.SendWithRetry(context.Background(), "hello", 1)
	elapsed := time.Since(started)

	if err == nil {
		t.Fatal("Expected error when every attempt fails")
	}
	if transport.calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", transport.calls)
	}
	// One backoff of 1s between the attempts, none after the last.
	if elapsed < 1*time.Second || elapsed > 1900*time.Millisecond {
		t.Errorf("Expected a single 1s backoff, took %v", elapsed)
	}
}

func TestSendWithRetryHonorsContextCancel(t *testing.T) {
	notifier, transport := newFailingNotifier()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := notifier.SendWithRetry(ctx, "hello", 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if transport.calls != 1 {
		t.Errorf("Expected 1 attempt before the cancelled backoff, got %d", transport.calls)
	}
}
