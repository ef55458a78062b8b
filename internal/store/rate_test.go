// ABOUTME: Tests for the SQLite OTP limiter state
// ABOUTME: Covers persistence across store instances, aborted updates and stale purge

package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestUpdateRateState_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	err = first.UpdateRateState(ctx, "a@x.com:signup", func(st *RateState) error {
		if !st.LastAt.IsZero() || st.Count != 0 {
			t.Errorf("fresh state = %+v, want zero", st)
		}
		st.LastAt, st.WindowStart, st.Count = at, at, 1
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateRateState failed: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer second.Close()
	err = second.UpdateRateState(ctx, "a@x.com:signup", func(st *RateState) error {
		if !st.LastAt.Equal(at) || !st.WindowStart.Equal(at) || st.Count != 1 {
			t.Errorf("reloaded state = %+v, want last=%v count=1", st, at)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateRateState failed: %v", err)
	}
}

func TestUpdateRateState_ErrorLeavesState(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	errStop := errors.New("stop")

	err := s.UpdateRateState(ctx, "k", func(st *RateState) error {
		st.Count = 99
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("UpdateRateState() error = %v, want %v", err, errStop)
	}

	_ = s.UpdateRateState(ctx, "k", func(st *RateState) error {
		if st.Count != 0 {
			t.Errorf("Count = %d after aborted update, want 0", st.Count)
		}
		return nil
	})
}

func TestUpdateRateState_ConcurrentIncrements(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.UpdateRateState(context.Background(), "k", func(st *RateState) error {
				st.Count++
				st.LastAt = time.Now()
				return nil
			})
			if err != nil {
				t.Errorf("UpdateRateState() error = %v", err)
			}
		}()
	}
	wg.Wait()

	_ = s.UpdateRateState(context.Background(), "k", func(st *RateState) error {
		if st.Count != 10 {
			t.Errorf("Count = %d, want 10", st.Count)
		}
		return nil
	})
}

func TestDeleteStaleRateStates(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	now := time.Now()

	for key, last := range map[string]time.Time{"old": now.Add(-2 * time.Hour), "new": now} {
		last := last
		if err := s.UpdateRateState(ctx, key, func(st *RateState) error {
			st.LastAt, st.Count = last, 1
			return nil
		}); err != nil {
			t.Fatalf("UpdateRateState failed: %v", err)
		}
	}

	n, err := s.DeleteStaleRateStates(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteStaleRateStates failed: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteStaleRateStates() = %d, want 1", n)
	}
}
