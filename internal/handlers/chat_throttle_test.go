package handlers

import (
	"testing"
	"time"
)

func TestChatThrottleWindowReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	throttle := newChatThrottle(2, time.Minute, clock)

	if !throttle.Allow("user-1") || !throttle.Allow("user-1") {
		t.Fatal("expected the first two messages to pass")
	}
	if throttle.Allow("user-1") {
		t.Fatal("expected the third message inside the window to be blocked")
	}
	if !throttle.Allow("user-2") {
		t.Fatal("expected an unrelated shopper to be unaffected")
	}

	now = now.Add(time.Minute)
	if !throttle.Allow("user-1") {
		t.Fatal("expected a fresh window after the old one elapsed")
	}
}

func TestChatThrottleDisabledForBadConfig(t *testing.T) {
	if throttle := newChatThrottle(0, time.Minute, nil); throttle != nil {
		t.Fatalf("expected nil throttle for zero limit, got %#v", throttle)
	}
	if throttle := newChatThrottle(5, 0, nil); throttle != nil {
		t.Fatalf("expected nil throttle for zero window, got %#v", throttle)
	}
}
