package oracle

import (
	"sync"
	"time"

	"PriceMesh/internal/domain/models"
	xlogger "PriceMesh/pkg/logger"
)

// Engine is the validation + aggregation + volatility-normalization core.
// It owns the four state maps (feed entries, price history, parameters,
// authorization registry) behind a single RWMutex, so every public operation
// runs as one critical section and a read never observes a partial update.
type Engine struct {
	mu sync.RWMutex

	params     models.OracleParams
	authorized map[string]bool
	// feeds keys entries by asset first so aggregation can enumerate all
	// reporters for an asset without a secondary index.
	feeds     map[string]map[string]models.FeedEntry
	history   map[string]models.PriceHistory
	supported map[string]struct{}

	verifier ProofVerifier
	weigher  SourceWeigher
	now      func() time.Time
	log      *xlogger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithVerifier replaces the proof verification strategy.
func WithVerifier(v ProofVerifier) Option {
	return func(e *Engine) { e.verifier = v }
}

// WithWeigher replaces the source weighting strategy.
func WithWeigher(w SourceWeigher) Option {
	return func(e *Engine) { e.weigher = w }
}

// WithLogger attaches a structured logger.
func WithLogger(l *xlogger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine creates an engine with the given initial parameters. Defaults:
// accept-all verifier, constant weight 50, wall clock.
func NewEngine(params models.OracleParams, opts ...Option) *Engine {
	e := &Engine{
		params:     params,
		authorized: make(map[string]bool),
		feeds:      make(map[string]map[string]models.FeedEntry),
		history:    make(map[string]models.PriceHistory),
		supported:  make(map[string]struct{}),
		verifier:   AcceptAllVerifier{},
		weigher:    ConstantWeigher{W: 50},
		now:        time.Now,
	}
	for _, a := range models.SupportedAssets() {
		e.supported[a] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetAuthorizedProvider flips the authorization flag for a reporter.
// Administrator gating happens at the API boundary.
func (e *Engine) SetAuthorizedProvider(reporter string, authorized bool) {
	e.mu.Lock()
	e.authorized[reporter] = authorized
	e.mu.Unlock()
	if e.log != nil {
		e.log.Info("provider authorization changed",
			xlogger.String("reporter", reporter),
			xlogger.Bool("authorized", authorized))
	}
}

// IsAuthorized reports whether a reporter may submit. Absence implies false.
func (e *Engine) IsAuthorized(reporter string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.authorized[reporter]
}

// SetParams replaces all five oracle parameters atomically.
func (e *Engine) SetParams(p models.OracleParams) {
	e.mu.Lock()
	e.params = p
	e.mu.Unlock()
	if e.log != nil {
		e.log.Info("oracle parameters replaced",
			xlogger.Int64("validity_period", p.ValidityPeriod),
			xlogger.Uint64("max_price_deviation", p.MaxPriceDeviation),
			xlogger.Int("min_required_sources", p.MinRequiredSources),
			xlogger.Uint64("min_volume_threshold", p.MinVolumeThreshold),
			xlogger.Uint64("slippage_tolerance", p.SlippageTolerance))
	}
}

// Params returns the current parameter set.
func (e *Engine) Params() models.OracleParams {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// Submit validates a submission and, on acceptance, overwrites the
// (asset, reporter) feed entry and updates the asset's price history.
// Checks run in order and short-circuit; nothing is written on failure.
func (e *Engine) Submit(sub *models.Submission) (*models.FeedEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.authorized[sub.Reporter] {
		return nil, ErrNotAuthorized
	}
	if _, ok := e.supported[sub.Asset]; !ok {
		return nil, ErrInvalidChain
	}
	if sub.Volume < e.params.MinVolumeThreshold {
		return nil, ErrBelowMinVolume
	}
	if !e.validPriceChange(sub.Asset, sub.Price) {
		return nil, ErrHighDeviation
	}

	ts := sub.Timestamp
	if ts == 0 {
		ts = e.now().Unix()
	}

	entry := models.FeedEntry{
		Asset:     sub.Asset,
		Reporter:  sub.Reporter,
		Price:     sub.Price,
		Timestamp: ts,
		Volume:    sub.Volume,
		Weight:    e.weigher.Weight(sub.Reporter, sub.Asset),
		Verified:  e.verifier.Verify(sub.Asset, sub.Price, sub.Proof),
	}

	byReporter, ok := e.feeds[sub.Asset]
	if !ok {
		byReporter = make(map[string]models.FeedEntry)
		e.feeds[sub.Asset] = byReporter
	}
	byReporter[sub.Reporter] = entry
	e.updateHistory(sub.Asset, sub.Price, ts)

	if e.log != nil {
		e.log.Debug("submission accepted",
			xlogger.String("asset", sub.Asset),
			xlogger.String("reporter", sub.Reporter),
			xlogger.Uint64("price", sub.Price),
			xlogger.Uint64("volume", sub.Volume),
			xlogger.Bool("verified", entry.Verified))
	}
	return &entry, nil
}

// validPriceChange accepts any price when no baseline exists (bootstrap).
// Otherwise the absolute change must not exceed last*MaxPriceDeviation.
// The multiplier is applied raw, without a basis-point divisor; the slippage
// and normalization paths do divide by 10_000. This asymmetry matches the
// observed system and is preserved as-is.
func (e *Engine) validPriceChange(asset string, price uint64) bool {
	last := e.history[asset].LastPrice
	if last == 0 {
		return true
	}
	return absDiff(price, last) <= last*e.params.MaxPriceDeviation
}

// updateHistory applies the integer-scaled EWMA: the new index is
// old*95 + |Δprice|*5 once a non-zero baseline exists, so the index carries
// an extra x100 factor that the normalizer's /10_000 divisor absorbs.
func (e *Engine) updateHistory(asset string, price uint64, ts int64) {
	h := e.history[asset]
	var vol uint64
	if h.LastPrice != 0 {
		vol = h.VolatilityIndex*95 + absDiff(price, h.LastPrice)*5
	}
	e.history[asset] = models.PriceHistory{
		LastPrice:       price,
		LastUpdate:      ts,
		VolatilityIndex: vol,
	}
}

// WeightedPrice aggregates the currently valid feed entries for an asset
// into a weight-weighted mean with truncating integer division. Stale,
// unverified and under-volume entries are filtered out, not rejected.
func (e *Engine) WeightedPrice(asset string) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weightedPriceLocked(asset)
}

func (e *Engine) weightedPriceLocked(asset string) (uint64, error) {
	if _, ok := e.supported[asset]; !ok {
		return 0, ErrInvalidPrice
	}

	now := e.now().Unix()
	var (
		count       int
		totalWeight uint64
		weightedSum uint64
	)
	for _, entry := range e.feeds[asset] {
		if now-entry.Timestamp > e.params.ValidityPeriod {
			continue
		}
		if !entry.Verified || entry.Volume < e.params.MinVolumeThreshold {
			continue
		}
		count++
		totalWeight += uint64(entry.Weight)
		weightedSum += entry.Price * uint64(entry.Weight)
	}

	if count < e.params.MinRequiredSources {
		return 0, ErrInsufficientSources
	}
	if totalWeight == 0 {
		return 0, ErrInvalidWeight
	}
	return weightedSum / totalWeight, nil
}

// NormalizedPrice is the weighted price adjusted upward by the asset's
// volatility index: price + price*index/10_000. There is no clamp on the
// adjustment; a large index inflates the result without bound.
func (e *Engine) NormalizedPrice(asset string) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	price, err := e.weightedPriceLocked(asset)
	if err != nil {
		return 0, err
	}
	vol := e.history[asset].VolatilityIndex
	return price + price*vol/10_000, nil
}

// WithinSlippage reports whether price sits inside the basis-point band
// around expected. Pure function over the current slippage tolerance.
func (e *Engine) WithinSlippage(price, expected uint64) bool {
	e.mu.RLock()
	tolerance := e.params.SlippageTolerance
	e.mu.RUnlock()

	dev := expected * tolerance / 10_000
	lower := uint64(0)
	if expected > dev {
		lower = expected - dev
	}
	return price >= lower && price <= expected+dev
}

// History returns the price history snapshot for an asset.
func (e *Engine) History(asset string) (models.PriceHistory, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.history[asset]
	return h, ok
}

// Entries returns a snapshot of the feed entries stored for an asset.
func (e *Engine) Entries(asset string) []models.FeedEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	byReporter := e.feeds[asset]
	out := make([]models.FeedEntry, 0, len(byReporter))
	for _, entry := range byReporter {
		out = append(out, entry)
	}
	return out
}

// ValidSourceCount reports how many feed entries currently pass the
// read-time filters for an asset. Observability helper; aggregation itself
// recomputes the filter.
func (e *Engine) ValidSourceCount(asset string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now().Unix()
	count := 0
	for _, entry := range e.feeds[asset] {
		if now-entry.Timestamp > e.params.ValidityPeriod {
			continue
		}
		if !entry.Verified || entry.Volume < e.params.MinVolumeThreshold {
			continue
		}
		count++
	}
	return count
}

// PruneStale removes feed entries older than maxAge and returns the number
// removed. Purely operational: read-time filtering semantics are unchanged,
// the pruner only reclaims memory for entries that can never aggregate again.
func (e *Engine) PruneStale(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-maxAge).Unix()
	removed := 0
	for asset, byReporter := range e.feeds {
		for reporter, entry := range byReporter {
			if entry.Timestamp < cutoff {
				delete(byReporter, reporter)
				removed++
			}
		}
		if len(byReporter) == 0 {
			delete(e.feeds, asset)
		}
	}
	if removed > 0 && e.log != nil {
		e.log.Info("stale feed entries pruned", xlogger.Int("removed", removed))
	}
	return removed
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
