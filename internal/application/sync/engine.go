package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/feedvault/core/internal/domain/series"
	"github.com/feedvault/core/internal/infrastructure/config"
	"github.com/feedvault/core/internal/infrastructure/logger"
	"github.com/feedvault/core/internal/ports"
)

// Request asks the engine for one dataset. Cooldown and Start are chosen by
// the consumer: the engine is policy-free about cadence.
type Request struct {
	// Key identifies the dataset artifact.
	Key string
	// Loader is the source capability used when a refresh is due.
	Loader ports.Loader
	// Cooldown is the minimum time between refresh attempts.
	Cooldown time.Duration
	// Start optionally requests history back to this date. Zero means "keep
	// whatever range the cache has".
	Start time.Time
	// Params is passed to the loader untouched.
	Params map[string]string
}

// Engine decides, on every Get, whether the cached table is fresh enough to
// serve as-is, whether an incremental refresh is due, or whether a full
// re-fetch is required. It never fails the caller: any internal error
// degrades to the best locally known table, possibly empty.
type Engine struct {
	datasets ports.DatasetStore
	meta     ports.MetadataStore
	mirror   *Mirror
	logger   *logger.Logger
	metrics  *Metrics
	clock    clockwork.Clock
	group    singleflight.Group
	limiter  *rate.Limiter

	backfillTolerance time.Duration
	loaderTimeout     time.Duration
}

// NewEngine creates a sync engine with injected stores and mirror
func NewEngine(datasets ports.DatasetStore, meta ports.MetadataStore, mirror *Mirror, cfg config.SyncConfig, clock clockwork.Clock, log *logger.Logger, metrics *Metrics) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	tolerance := cfg.BackfillTolerance
	if tolerance <= 0 {
		tolerance = 5 * 24 * time.Hour
	}

	var limiter *rate.Limiter
	if cfg.LoaderRateLimit > 0 {
		burst := cfg.LoaderBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.LoaderRateLimit), burst)
	}

	return &Engine{
		datasets:          datasets,
		meta:              meta,
		mirror:            mirror,
		logger:            log.WithComponent("sync_engine"),
		metrics:           metrics,
		clock:             clock,
		limiter:           limiter,
		backfillTolerance: tolerance,
		loaderTimeout:     cfg.LoaderTimeout,
	}
}

// Get returns an up-to-date table for the request, minimizing loader calls.
// Concurrent callers for the same key share a single in-flight evaluation;
// nobody races into a duplicate loader call or a torn merge.
func (e *Engine) Get(ctx context.Context, req Request) *series.Table {
	if req.Key == "" || req.Loader == nil {
		e.logger.Errorw("Rejecting malformed sync request", "dataset", req.Key)
		return series.New()
	}

	v, _, _ := e.group.Do(req.Key, func() (interface{}, error) {
		return e.get(ctx, req), nil
	})

	table, ok := v.(*series.Table)
	if !ok || table == nil {
		return series.New()
	}
	return table
}

// Invalidate removes the dataset artifact and its checkpoint, forcing the
// next Get to fetch from scratch (or recover from the archive).
func (e *Engine) Invalidate(ctx context.Context, key string) error {
	if err := e.datasets.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate dataset: %w", err)
	}
	if err := e.meta.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate checkpoint: %w", err)
	}
	e.logger.Infow("Invalidated dataset", "dataset", key)
	return nil
}

// get runs the per-call state machine. States are transient: they are
// re-derived on every call from artifact presence and staleness.
func (e *Engine) get(ctx context.Context, req Request) *series.Table {
	log := e.logger.WithDataset(req.Key)

	cached, err := e.datasets.Load(ctx, req.Key)
	if err != nil {
		log.Errorw("Dataset load failed", "error", err.Error())
		cached = series.New()
	}

	// Absent: try disaster recovery from the archive before touching the
	// source at all.
	if cached.IsEmpty() && e.mirror.Recover(ctx, req.Key) {
		recovered, err := e.datasets.Load(ctx, req.Key)
		if err == nil && !recovered.IsEmpty() {
			e.metrics.observeOutcome(req.Key, outcomeRecovered)
			cached = recovered
		}
	}

	// Still absent (or present but holding zero valid records): only a full
	// fetch can help.
	if cached.IsEmpty() {
		fetched, err := e.fullFetch(ctx, req, log)
		if err != nil {
			log.Errorw("Full fetch failed", "error", err.Error())
			e.metrics.observeOutcome(req.Key, outcomeRefreshFailed)
			return series.New()
		}
		if fetched.IsEmpty() {
			e.metrics.observeOutcome(req.Key, outcomeEmpty)
		}
		return fetched
	}

	last, err := e.meta.LastChecked(ctx, req.Key)
	if err != nil {
		// Treat an unreadable checkpoint as long expired.
		log.Warnw("Checkpoint load failed", "error", err.Error())
		last = time.Time{}
	}

	// Dominant path: inside the cooldown window the cache is served as-is,
	// with no loader call and no checkpoint mutation. This is what bounds
	// external call volume for slow-cadence sources.
	if e.clock.Now().Sub(last) < req.Cooldown {
		e.metrics.observeOutcome(req.Key, outcomeCooldownHit)
		return cached
	}

	refreshed, err := e.refresh(ctx, req, cached, log)
	if err != nil {
		// A failed attempt is deliberately not recorded as "checked": the
		// next call retries immediately instead of sitting out a false
		// cooldown and missing genuinely new data.
		log.Errorw("Refresh failed, serving cached table", "error", err.Error())
		e.metrics.observeOutcome(req.Key, outcomeRefreshFailed)
		return cached
	}
	return refreshed
}

// refresh runs once the cooldown has expired, in priority order: backfill,
// forward-fill gap check, incremental fetch and merge.
func (e *Engine) refresh(ctx context.Context, req Request, cached *series.Table, log *logger.Logger) (*series.Table, error) {
	now := e.clock.Now()

	// Backfill: the caller wants earlier history than the cache holds, by
	// more than the tolerance. Incremental logic cannot produce it; re-fetch
	// the full requested range and overwrite. The tolerance absorbs
	// off-by-a-few-days differences in provider calendars.
	if !req.Start.IsZero() {
		if min, ok := cached.MinDate(); ok && min.Sub(series.Day(req.Start)) > e.backfillTolerance {
			log.Infow("Cached history starts too late, re-fetching full range",
				"cached_min", min.Format(series.DateLayout),
				"requested_start", req.Start.Format(series.DateLayout),
			)
			fetched, err := e.fullFetch(ctx, req, log)
			if err != nil {
				return nil, err
			}
			if fetched.IsEmpty() {
				// The source produced nothing for the wider range; keep the
				// cache instead of regressing the caller's view.
				e.touch(ctx, req.Key, log)
				e.metrics.observeOutcome(req.Key, outcomeNoNewData)
				return cached, nil
			}
			return fetched, nil
		}
	}

	maxDate, _ := cached.MaxDate()
	nextDay := maxDate.AddDate(0, 0, 1)

	// The tail is current: data for nextDay cannot exist yet, so there is
	// nothing to ask the source for. Record that the check happened.
	if nextDay.After(now) {
		e.touch(ctx, req.Key, log)
		e.metrics.observeOutcome(req.Key, outcomeUpToDate)
		return cached, nil
	}

	fetched, err := e.callLoader(ctx, req, nextDay, now)
	if err != nil {
		return nil, err
	}

	if fetched.IsEmpty() {
		// A successful check with nothing to report: source not published
		// yet, market closed. The fact itself is cacheable, so the
		// checkpoint advances and only the checkpoint crosses the network.
		e.touch(ctx, req.Key, log)
		e.mirror.Publish(ctx, req.Key, nil, false, true)
		e.metrics.observeOutcome(req.Key, outcomeNoNewData)
		return cached, nil
	}

	merged := series.Merge(cached, fetched)
	if err := e.datasets.Save(ctx, req.Key, merged); err != nil {
		return nil, fmt.Errorf("save merged dataset: %w", err)
	}
	e.touch(ctx, req.Key, log)
	e.mirror.Publish(ctx, req.Key, merged, true, true)
	e.metrics.observeOutcome(req.Key, outcomeRefreshed)

	log.Infow("Extended dataset",
		"new_rows", fetched.Len(),
		"total_rows", merged.Len(),
	)
	return merged, nil
}

// fullFetch requests the entire needed range and replaces the cache with the
// result. An empty result saves nothing and leaves the checkpoint alone.
func (e *Engine) fullFetch(ctx context.Context, req Request, log *logger.Logger) (*series.Table, error) {
	fetched, err := e.callLoader(ctx, req, req.Start, e.clock.Now())
	if err != nil {
		return nil, err
	}
	if fetched.IsEmpty() {
		return fetched, nil
	}

	if err := e.datasets.Save(ctx, req.Key, fetched); err != nil {
		return nil, fmt.Errorf("save dataset: %w", err)
	}
	e.touch(ctx, req.Key, log)
	e.mirror.Publish(ctx, req.Key, fetched, true, true)
	e.metrics.observeOutcome(req.Key, outcomeFullFetch)

	log.Infow("Stored full dataset", "rows", fetched.Len())
	return fetched, nil
}

// callLoader applies rate limiting and the loader timeout, then fetches and
// normalizes. A timeout surfaces as an ordinary loader error.
func (e *Engine) callLoader(ctx context.Context, req Request, start, end time.Time) (*series.Table, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("loader rate limit: %w", err)
		}
	}

	if e.loaderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.loaderTimeout)
		defer cancel()
	}

	began := time.Now()
	fetched, err := req.Loader.Fetch(ctx, ports.FetchRequest{
		Start:  start,
		End:    end,
		Params: req.Params,
	})
	elapsed := time.Since(began)

	rows := fetched.Len()
	e.logger.LogLoaderCall(req.Key, formatDate(start), formatDate(end), rows, float64(elapsed.Milliseconds()), err)
	e.metrics.observeLoaderCall(req.Key, elapsed, err)

	if err != nil {
		return nil, fmt.Errorf("loader fetch: %w", err)
	}
	if fetched == nil {
		return series.New(), nil
	}
	return fetched.Clone().Normalize(), nil
}

// touch advances the checkpoint; failures are logged but do not abort the
// cycle that produced data.
func (e *Engine) touch(ctx context.Context, key string, log *logger.Logger) {
	if err := e.meta.Touch(ctx, key); err != nil {
		log.Warnw("Failed to advance checkpoint", "error", err.Error())
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(series.DateLayout)
}
