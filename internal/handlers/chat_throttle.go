package handlers

import (
	"strings"
	"sync"
	"time"
)

// chatLimiter caps how often a shopper can message the assistant. Every
// assistant reply is an upstream completion call, so the handler throttles
// per UID before touching the service.
type chatLimiter interface {
	Allow(uid string) bool
}

// chatThrottle counts messages per shopper in fixed windows. Stale shopper
// entries are swept periodically rather than on every call.
type chatThrottle struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu       sync.Mutex
	shoppers map[string]chatWindow
	sweepAt  time.Time
}

type chatWindow struct {
	startedAt time.Time
	messages  int
}

func newChatThrottle(limit int, window time.Duration, clock func() time.Time) chatLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &chatThrottle{
		limit:    limit,
		window:   window,
		clock:    clock,
		shoppers: make(map[string]chatWindow),
		sweepAt:  clock().Add(window),
	}
}

func (t *chatThrottle) Allow(uid string) bool {
	if t == nil {
		return true
	}
	uid = strings.TrimSpace(uid)
	if uid == "" {
		// Identity is enforced upstream; an empty UID shares one bucket.
		uid = "anonymous"
	}
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !now.Before(t.sweepAt) {
		t.sweepLocked(now)
		t.sweepAt = now.Add(t.window)
	}

	win, ok := t.shoppers[uid]
	if !ok || now.Sub(win.startedAt) >= t.window {
		t.shoppers[uid] = chatWindow{startedAt: now, messages: 1}
		return true
	}
	if win.messages >= t.limit {
		return false
	}
	win.messages++
	t.shoppers[uid] = win
	return true
}

func (t *chatThrottle) sweepLocked(now time.Time) {
	for uid, win := range t.shoppers {
		if now.Sub(win.startedAt) >= t.window {
			delete(t.shoppers, uid)
		}
	}
}
