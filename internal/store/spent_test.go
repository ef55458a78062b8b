// ABOUTME: Tests for the SQLite spent-token record
// ABOUTME: Covers first-spender-wins, concurrent spends and expiry purge

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSpend_Once(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	ok, err := s.Spend(ctx, "jti-1", exp)
	if err != nil {
		t.Fatalf("Spend() error = %v", err)
	}
	if !ok {
		t.Error("first Spend() = false, want true")
	}

	ok, err = s.Spend(ctx, "jti-1", exp)
	if err != nil {
		t.Fatalf("Spend() error = %v", err)
	}
	if ok {
		t.Error("second Spend() = true, want false")
	}
}

func TestSpend_ExpiredRowDoesNotBlock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Spend(ctx, "jti-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Spend() error = %v", err)
	}
	ok, err := s.Spend(ctx, "jti-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Spend() error = %v", err)
	}
	if !ok {
		t.Error("Spend() over an expired record = false, want true")
	}
}

func TestSpend_Concurrent(t *testing.T) {
	s := newTestStore(t)
	exp := time.Now().Add(time.Hour)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Spend(context.Background(), "shared", exp)
			if err != nil {
				t.Errorf("Spend() error = %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners = %d, want 1", wins)
	}
}

func TestDeleteExpiredTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for id, exp := range map[string]time.Time{
		"old-1": now.Add(-time.Hour),
		"old-2": now.Add(-time.Minute),
		"live":  now.Add(time.Hour),
	} {
		if _, err := s.Spend(ctx, id, exp); err != nil {
			t.Fatalf("Spend(%s) error = %v", id, err)
		}
	}

	n, err := s.DeleteExpiredTokens(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredTokens() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	ok, err := s.Spend(ctx, "live", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Spend() error = %v", err)
	}
	if ok {
		t.Error("live record was purged")
	}
}
