package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestSlidingWindow(t *testing.T) {
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sw := NewSlidingWindow(3, time.Second)
	sw.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		if !sw.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	if sw.Allow() {
		t.Error("Expected request to be denied when limit is reached")
	}

	current = current.Add(time.Second + time.Millisecond)
	if !sw.Allow() {
		t.Error("Expected request to be allowed after window slides")
	}

	sw.Reset()
	if len(sw.requests) != 0 {
		t.Error("Expected requests to be cleared after reset")
	}
}

func TestSlidingWindowWaitBlocksUntilSlotFrees(t *testing.T) {
	sw := NewSlidingWindow(1, 50*time.Millisecond)

	start := time.Now()
	if err := sw.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if err := sw.Wait(context.Background()); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second request admitted after %v, expected to wait for the window", elapsed)
	}
}

func TestSlidingWindowWaitCancelled(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	sw.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := sw.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestPerMinute(t *testing.T) {
	if _, ok := PerMinute(0).(Unlimited); !ok {
		t.Error("PerMinute(0) should not limit")
	}
	if _, ok := PerMinute(-5).(Unlimited); !ok {
		t.Error("PerMinute(-5) should not limit")
	}

	l := PerMinute(2)
	if !l.Allow() || !l.Allow() {
		t.Fatal("expected two requests to be admitted")
	}
	if l.Allow() {
		t.Error("third request within a minute should be denied")
	}
}
