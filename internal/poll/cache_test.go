package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeClock) NewTicker(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticker = &fakeTicker{c: make(chan time.Time)}
	return f.ticker
}

// Tick delivers one tick to the loop's current ticker, blocking until the
// loop receives it.
func (f *fakeClock) Tick(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		ticker := f.ticker
		now := f.now
		f.mu.Unlock()
		if ticker != nil {
			select {
			case ticker.c <- now:
				return
			case <-deadline:
				t.Fatalf("loop never received tick")
			}
		}
		select {
		case <-deadline:
			t.Fatalf("no ticker created")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

type fakeTicker struct {
	c chan time.Time
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never met")
}

func TestCacheLifecycle(t *testing.T) {
	clock := newFakeClock()

	var mu sync.Mutex
	fetchCount := 0
	fetched := make(chan int, 16)
	fetch := func(context.Context) (int, error) {
		mu.Lock()
		fetchCount++
		n := fetchCount
		mu.Unlock()
		fetched <- n
		return n, nil
	}

	cache := NewWithClock("test", time.Minute, 5*time.Minute, fetch, clock)
	defer cache.Close()

	value, err := cache.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != 1 {
		t.Fatalf("expected first fetch value 1, got %d", value)
	}
	<-fetched
	if !cache.Polling() {
		t.Fatalf("expected polling after Get")
	}

	// Each tick within the activity window refreshes.
	clock.Advance(time.Minute)
	clock.Tick(t)
	if n := <-fetched; n != 2 {
		t.Fatalf("expected second fetch, got %d", n)
	}
	waitUntil(t, func() bool {
		v, ok := cache.Peek()
		return ok && v == 2
	})

	// Once the idle window elapses with no Get, the loop stops and no
	// further fetches happen.
	clock.Advance(10 * time.Minute)
	clock.Tick(t)
	waitUntil(t, func() bool { return !cache.Polling() })
	if len(fetched) != 0 {
		t.Fatalf("unexpected fetch after idle")
	}

	// The next Get reactivates; the held value is served and a background
	// refresh starts immediately.
	value, err = cache.Get(context.Background())
	if err != nil {
		t.Fatalf("get after idle: %v", err)
	}
	if value != 2 {
		t.Fatalf("expected held value 2, got %d", value)
	}
	if n := <-fetched; n != 3 {
		t.Fatalf("expected reactivation fetch, got %d", n)
	}
	if !cache.Polling() {
		t.Fatalf("expected polling after reactivation")
	}
}

func TestCachePeekDoesNotActivate(t *testing.T) {
	clock := newFakeClock()
	cache := NewWithClock("peek", time.Minute, 5*time.Minute, func(context.Context) (int, error) {
		t.Fatalf("peek must not fetch")
		return 0, nil
	}, clock)

	if _, ok := cache.Peek(); ok {
		t.Fatalf("expected no held value")
	}
	if cache.Polling() {
		t.Fatalf("peek must not start polling")
	}
}

func TestCacheStoreSupersedesInflightFetch(t *testing.T) {
	clock := newFakeClock()

	results := make(chan int)
	done := make(chan struct{}, 4)
	fetch := func(context.Context) (int, error) {
		v := <-results
		done <- struct{}{}
		return v, nil
	}

	cache := NewWithClock("write", time.Minute, 5*time.Minute, fetch, clock)
	defer cache.Close()

	go func() { results <- 10 }()
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("get: %v", err)
	}
	<-done

	// Start a refresh that stalls in flight.
	clock.Advance(time.Minute)
	clock.Tick(t)

	// A local write lands while the fetch is pending.
	cache.Store(99)

	// The stale fetch resolves afterwards and must be discarded.
	results <- 11
	<-done

	waitUntil(t, func() bool {
		v, ok := cache.Peek()
		return ok && v == 99
	})
}

func TestCacheOnUpdateFiresForFetchesAndStores(t *testing.T) {
	clock := newFakeClock()

	next := 1
	cache := NewWithClock("update", time.Minute, 5*time.Minute, func(context.Context) (int, error) {
		v := next
		next++
		return v, nil
	}, clock)
	defer cache.Close()

	var mu sync.Mutex
	var seen []int
	cache.SetOnUpdate(func(v int) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("get: %v", err)
	}
	cache.Store(42)

	clock.Advance(time.Minute)
	clock.Tick(t)

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})
	mu.Lock()
	defer mu.Unlock()
	if seen[0] != 1 || seen[1] != 42 || seen[2] != 2 {
		t.Fatalf("unexpected update sequence %v", seen)
	}
}

func TestCacheFirstFetchErrorPropagates(t *testing.T) {
	clock := newFakeClock()
	boom := errors.New("boom")
	cache := NewWithClock("err", time.Minute, 5*time.Minute, func(context.Context) (int, error) {
		return 0, boom
	}, clock)
	defer cache.Close()

	if _, err := cache.Get(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if _, ok := cache.Peek(); ok {
		t.Fatalf("failed fetch must not store a value")
	}
}
