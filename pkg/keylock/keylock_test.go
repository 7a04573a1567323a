// Package keylock provides per-key locks with bounded acquisition.
package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLockUnlock(t *testing.T) {
	table := New()

	release, err := table.Lock(context.Background(), "spool-a")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !table.Held("spool-a") {
		t.Error("Held() = false while lock is held")
	}
	release()

	if table.Size() != 0 {
		t.Errorf("Size() after release = %d, want 0", table.Size())
	}
}

func TestLockTimesOutWhileHeld(t *testing.T) {
	table := New(WithRetryInterval(time.Millisecond))

	release, err := table.Lock(context.Background(), "spool-a")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := table.Lock(ctx, "spool-a"); !errors.Is(err, ErrAcquireTimeout) {
		t.Errorf("second Lock() error = %v, want ErrAcquireTimeout", err)
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	table := New()

	releaseA, err := table.Lock(context.Background(), "spool-a")
	if err != nil {
		t.Fatalf("Lock(a) error = %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	releaseB, err := table.Lock(ctx, "spool-b")
	if err != nil {
		t.Fatalf("Lock(b) while a held error = %v", err)
	}
	releaseB()
}

func TestSharedReaders(t *testing.T) {
	table := New()
	ctx := context.Background()

	r1, err := table.RLock(ctx, "spool-a")
	if err != nil {
		t.Fatalf("RLock() error = %v", err)
	}
	r2, err := table.RLock(ctx, "spool-a")
	if err != nil {
		t.Fatalf("second RLock() error = %v", err)
	}

	// A writer must wait for both readers.
	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := table.Lock(timeoutCtx, "spool-a"); !errors.Is(err, ErrAcquireTimeout) {
		t.Errorf("Lock() with readers held error = %v, want ErrAcquireTimeout", err)
	}

	r1()
	r2()

	release, err := table.Lock(ctx, "spool-a")
	if err != nil {
		t.Fatalf("Lock() after readers released error = %v", err)
	}
	release()
}

func TestLockEventuallyAcquired(t *testing.T) {
	table := New(WithRetryInterval(time.Millisecond))
	ctx := context.Background()

	release, err := table.Lock(ctx, "spool-a")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		release()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	second, err := table.Lock(waitCtx, "spool-a")
	if err != nil {
		t.Fatalf("waiting Lock() error = %v", err)
	}
	second()
}

func TestLockAcquiredUnderReaderChurn(t *testing.T) {
	table := New(WithRetryInterval(time.Millisecond))
	ctx := context.Background()

	// Overlapping readers keep the shared lock near-continuously held.
	// A writer must still get through because new readers yield to it.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				release, err := table.RLock(ctx, "spool-a")
				if err != nil {
					t.Errorf("RLock() error = %v", err)
					return
				}
				time.Sleep(2 * time.Millisecond)
				release()
			}
		}()
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	release, err := table.Lock(waitCtx, "spool-a")
	if err != nil {
		t.Fatalf("Lock() under reader churn error = %v", err)
	}
	release()

	close(stop)
	wg.Wait()
}

func TestReleaseIsIdempotent(t *testing.T) {
	table := New()
	release, err := table.Lock(context.Background(), "spool-a")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	release()
	release() // must not panic or unlock someone else's acquisition

	again, err := table.Lock(context.Background(), "spool-a")
	if err != nil {
		t.Fatalf("re-Lock() error = %v", err)
	}
	again()
}

func TestMutualExclusionCounter(t *testing.T) {
	table := New(WithRetryInterval(time.Millisecond))
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				release, err := table.Lock(ctx, "shared")
				if err != nil {
					t.Errorf("Lock() error = %v", err)
					return
				}
				counter++
				release()
			}
		}()
	}
	wg.Wait()

	if counter != 16*50 {
		t.Errorf("counter = %d, want %d; lost updates under contention", counter, 16*50)
	}
	if table.Size() != 0 {
		t.Errorf("Size() after all releases = %d, want 0", table.Size())
	}
}
