package feed

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"traderbot/internal/domain"
	"traderbot/internal/store"
)

// fakeFetcher serves scripted bars and counts calls.
type fakeFetcher struct {
	bars  []domain.Bar
	err   error
	calls int
}

func (f *fakeFetcher) FetchBars(_ context.Context, _, _ string, limit int) ([]domain.Bar, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return tail(f.bars, limit), nil
}

func (f *fakeFetcher) PollLatest(ctx context.Context, symbol, timeframe string) (domain.Bar, error) {
	bars, err := f.FetchBars(ctx, symbol, timeframe, 1)
	if err != nil {
		return domain.Bar{}, err
	}
	if len(bars) == 0 {
		return domain.Bar{}, errors.New("no bars")
	}
	return bars[len(bars)-1], nil
}

func hourlyBars(symbol string, end time.Time, n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		ts := end.Add(-time.Duration(n-1-i) * time.Hour)
		bars[i] = domain.Bar{
			Symbol: symbol, Timestamp: ts,
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 10,
		}
	}
	return bars
}

func newTestCachedFeed(t *testing.T, source BarFetcher, now time.Time) *CachedFeed {
	t.Helper()
	cf := NewCachedFeed(source, store.NewParquetStore(t.TempDir()), 30)
	cf.now = func() time.Time { return now }
	cf.log = slog.Default()
	return cf
}

func TestAlpacaTimeframe(t *testing.T) {
	for _, tf := range []string{"1m", "5m", "1h", "4h", "1d"} {
		if _, err := alpacaTimeframe(tf); err != nil {
			t.Errorf("alpacaTimeframe(%q): %v", tf, err)
		}
	}
	if _, err := alpacaTimeframe("1w"); err == nil {
		t.Error("alpacaTimeframe should reject 1w")
	}
}

func TestCachedFeedFetchAndServe(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeFetcher{bars: hourlyBars("AAPL", now, 10)}
	cf := newTestCachedFeed(t, source, now)
	ctx := context.Background()

	got, err := cf.FetchBars(ctx, "AAPL", "1h", 5)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d bars, want 5", len(got))
	}
	if source.calls != 1 {
		t.Fatalf("source called %d times, want 1", source.calls)
	}

	// Second read inside the TTL is served from the cache.
	if _, err := cf.FetchBars(ctx, "AAPL", "1h", 5); err != nil {
		t.Fatalf("FetchBars (cached): %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("source called %d times after cached read, want 1", source.calls)
	}
}

func TestCachedFeedRefreshesStale(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeFetcher{bars: hourlyBars("AAPL", now.Add(-2*time.Hour), 5)}
	cf := newTestCachedFeed(t, source, now)
	ctx := context.Background()

	// Prime the cache with bars older than the 30-minute TTL.
	if _, err := cf.FetchBars(ctx, "AAPL", "1h", 5); err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if _, err := cf.FetchBars(ctx, "AAPL", "1h", 5); err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("source called %d times, want 2 (stale cache must refetch)", source.calls)
	}
}

func TestCachedFeedServesStaleOnSourceError(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeFetcher{bars: hourlyBars("AAPL", now.Add(-2*time.Hour), 5)}
	cf := newTestCachedFeed(t, source, now)
	ctx := context.Background()

	if _, err := cf.FetchBars(ctx, "AAPL", "1h", 5); err != nil {
		t.Fatalf("FetchBars: %v", err)
	}

	source.err = errors.New("api down")
	got, err := cf.FetchBars(ctx, "AAPL", "1h", 5)
	if err != nil {
		t.Fatalf("FetchBars should fall back to stale cache, got error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("stale fallback returned %d bars, want 5", len(got))
	}

	// With no cache at all, the source error surfaces.
	if _, err := cf.FetchBars(ctx, "MSFT", "1h", 5); err == nil {
		t.Fatal("expected error for uncached symbol with failing source")
	}
}

func TestCachedFeedMergesHistory(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	old := hourlyBars("AAPL", now.Add(-5*time.Hour), 5)
	source := &fakeFetcher{bars: old}
	cf := newTestCachedFeed(t, source, now)
	ctx := context.Background()

	if _, err := cf.FetchBars(ctx, "AAPL", "1h", 10); err != nil {
		t.Fatalf("FetchBars: %v", err)
	}

	// The refreshed tail overlaps the cached history by two bars; the
	// merged read covers the union without duplicates.
	source.bars = hourlyBars("AAPL", now, 7)
	got, err := cf.FetchBars(ctx, "AAPL", "1h", 20)
	if err != nil {
		t.Fatalf("FetchBars (refresh): %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("merged read returned %d bars, want 10", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("merged bars not strictly increasing at %d", i)
		}
	}
}

func TestCachedFeedPollLatest(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeFetcher{bars: hourlyBars("AAPL", now, 3)}
	cf := newTestCachedFeed(t, source, now)
	ctx := context.Background()

	bar, err := cf.PollLatest(ctx, "AAPL", "1h")
	if err != nil {
		t.Fatalf("PollLatest: %v", err)
	}
	if !bar.Timestamp.Equal(now) {
		t.Fatalf("PollLatest ts = %v, want %v", bar.Timestamp, now)
	}

	// The polled bar lands in the cache.
	cached, err := cf.cache.ReadBars(ctx, "AAPL", "1h", time.Time{}, now)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("cache has %d bars after poll, want 1", len(cached))
	}
}
