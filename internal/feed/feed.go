// Package feed fetches OHLCV bars from the Alpaca market-data API, with
// client-side rate limiting, retries, and an on-disk Parquet cache.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"traderbot/internal/config"
	"traderbot/internal/domain"
	"traderbot/internal/store"
	"traderbot/internal/util"
)

// BarFetcher retrieves OHLCV bars from a market-data source.
type BarFetcher interface {
	// FetchBars returns up to limit bars for the symbol and timeframe,
	// ending at the present, sorted by timestamp.
	FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Bar, error)

	// PollLatest returns the most recent bar for the symbol.
	PollLatest(ctx context.Context, symbol, timeframe string) (domain.Bar, error)
}

// Compile-time interface checks.
var _ BarFetcher = (*AlpacaFetcher)(nil)
var _ BarFetcher = (*CachedFeed)(nil)

// AlpacaFetcher implements BarFetcher against the Alpaca market-data API.
type AlpacaFetcher struct {
	client      *marketdata.Client
	limiter     *util.RateLimiter
	maxRetries  int
	backoffBase time.Duration
	log         *slog.Logger
}

// NewAlpacaFetcher creates an AlpacaFetcher from the feed and network
// sections of the configuration.
func NewAlpacaFetcher(cfg *config.Config) *AlpacaFetcher {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.Feed.APIKey,
		APISecret: cfg.Feed.APISecret,
	}
	if cfg.Feed.DataURL != "" {
		opts.BaseURL = cfg.Feed.DataURL
	}
	return &AlpacaFetcher{
		client:      marketdata.NewClient(opts),
		limiter:     util.NewRateLimiter(cfg.Network.RateLimitPerMin),
		maxRetries:  cfg.Network.MaxRetries,
		backoffBase: time.Duration(cfg.Network.BackoffBaseMs) * time.Millisecond,
		log:         slog.Default().With("component", "feed"),
	}
}

// FetchBars fetches up to limit bars ending at the present, retrying
// transient failures with exponential backoff.
func (f *AlpacaFetcher) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Bar, error) {
	tf, err := alpacaTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	interval, err := util.TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(limit) * interval)

	var raw []marketdata.Bar
	err = util.Retry(ctx, f.maxRetries, f.backoffBase, func() error {
		var reqErr error
		raw, reqErr = f.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  tf,
			Start:      start,
			End:        end,
			TotalLimit: limit,
		})
		if reqErr != nil {
			f.log.Warn("bar fetch failed", "symbol", symbol, "err", reqErr)
		}
		return reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching bars for %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, ab := range raw {
		bars = append(bars, domain.Bar{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: ab.Timestamp.UTC(),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}
	return bars, nil
}

// PollLatest fetches the most recent bar for the symbol.
func (f *AlpacaFetcher) PollLatest(ctx context.Context, symbol, timeframe string) (domain.Bar, error) {
	bars, err := f.FetchBars(ctx, symbol, timeframe, 1)
	if err != nil {
		return domain.Bar{}, err
	}
	if len(bars) == 0 {
		return domain.Bar{}, fmt.Errorf("no bars returned for %s", symbol)
	}
	return bars[len(bars)-1], nil
}

// alpacaTimeframe maps a timeframe string like "5m", "1h", or "1d" to the
// Alpaca API representation.
func alpacaTimeframe(timeframe string) (marketdata.TimeFrame, error) {
	minutes, err := util.TimeframeMinutes(timeframe)
	if err != nil {
		return marketdata.TimeFrame{}, err
	}
	switch {
	case minutes%(60*24) == 0:
		return marketdata.NewTimeFrame(minutes/(60*24), marketdata.Day), nil
	case minutes%60 == 0:
		return marketdata.NewTimeFrame(minutes/60, marketdata.Hour), nil
	default:
		return marketdata.NewTimeFrame(minutes, marketdata.Min), nil
	}
}

// CachedFeed wraps a BarFetcher with a Parquet cache on disk. History reads
// are served from the cache while the newest cached bar is younger than the
// configured TTL; otherwise the source is queried and the cache refreshed.
type CachedFeed struct {
	source BarFetcher
	cache  *store.ParquetStore
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
}

// NewCachedFeed creates a CachedFeed over the given source and cache store.
func NewCachedFeed(source BarFetcher, cache *store.ParquetStore, cacheMinutes int) *CachedFeed {
	return &CachedFeed{
		source: source,
		cache:  cache,
		ttl:    time.Duration(cacheMinutes) * time.Minute,
		now:    time.Now,
		log:    slog.Default().With("component", "feed-cache"),
	}
}

// FetchBars returns up to limit bars for the symbol, preferring the cache.
func (c *CachedFeed) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Bar, error) {
	cached, err := c.cache.ReadBars(ctx, symbol, timeframe, time.Time{}, c.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		age := c.now().UTC().Sub(cached[len(cached)-1].Timestamp)
		if age < c.ttl {
			return tail(cached, limit), nil
		}
	}

	fresh, err := c.source.FetchBars(ctx, symbol, timeframe, limit)
	if err != nil {
		// A stale cache still beats no data when the source is down.
		if len(cached) > 0 {
			c.log.Warn("source fetch failed, serving stale cache", "symbol", symbol, "err", err)
			return tail(cached, limit), nil
		}
		return nil, err
	}
	if err := c.cache.WriteBarsTimeframe(fresh, timeframe); err != nil {
		return nil, fmt.Errorf("caching bars for %s: %w", symbol, err)
	}

	// Re-read so the result includes older cached history merged with the
	// refreshed tail.
	merged, err := c.cache.ReadBars(ctx, symbol, timeframe, time.Time{}, c.now().UTC())
	if err != nil {
		return nil, err
	}
	return tail(merged, limit), nil
}

// PollLatest always queries the source and folds the bar into the cache.
func (c *CachedFeed) PollLatest(ctx context.Context, symbol, timeframe string) (domain.Bar, error) {
	bar, err := c.source.PollLatest(ctx, symbol, timeframe)
	if err != nil {
		return domain.Bar{}, err
	}
	if err := c.cache.WriteBarsTimeframe([]domain.Bar{bar}, timeframe); err != nil {
		return domain.Bar{}, fmt.Errorf("caching latest bar for %s: %w", symbol, err)
	}
	return bar, nil
}

func tail(bars []domain.Bar, limit int) []domain.Bar {
	if limit > 0 && len(bars) > limit {
		return bars[len(bars)-limit:]
	}
	return bars
}
