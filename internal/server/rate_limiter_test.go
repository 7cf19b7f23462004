package server

import (
	"testing"
	"time"
)

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time { return c.now }

func (c *steppingClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRateLimiterWindow(t *testing.T) {
	clk := &steppingClock{now: time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)}
	limiter := newRateLimiter(3, time.Minute, clk)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatal("request over the limit should be rejected")
	}

	// another key has its own budget
	if !limiter.Allow("5.6.7.8") {
		t.Fatal("independent key should be allowed")
	}

	// the window resets lazily
	clk.Advance(61 * time.Second)
	if !limiter.Allow("1.2.3.4") {
		t.Fatal("request after window reset should be allowed")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	if limiter := newRateLimiter(0, time.Minute, &steppingClock{}); limiter != nil {
		t.Fatal("zero limit should disable the limiter")
	}
}

func TestRateLimiterEmptyKey(t *testing.T) {
	limiter := newRateLimiter(3, time.Minute, &steppingClock{now: time.Now()})
	if limiter.Allow("") {
		t.Fatal("empty key should be rejected")
	}
}
