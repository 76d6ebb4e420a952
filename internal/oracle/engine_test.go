package oracle

import (
	"errors"
	"testing"
	"time"

	"PriceMesh/internal/domain/models"
)

func testParams() models.OracleParams {
	return models.OracleParams{
		ValidityPeriod:     300,
		MaxPriceDeviation:  1, // raw multiplier: allow up to 100% move
		MinRequiredSources: 2,
		MinVolumeThreshold: 10_000,
		SlippageTolerance:  50,
	}
}

func fixedClock(ts int64) func() time.Time {
	return func() time.Time { return time.Unix(ts, 0) }
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock(1_700_000_000))}, opts...)
	e := NewEngine(testParams(), opts...)
	e.SetAuthorizedProvider("rep-a", true)
	e.SetAuthorizedProvider("rep-b", true)
	return e
}

func submit(t *testing.T, e *Engine, reporter, asset string, price, volume uint64) {
	t.Helper()
	_, err := e.Submit(&models.Submission{
		Reporter:  reporter,
		Asset:     asset,
		Price:     price,
		Volume:    volume,
		Timestamp: 1_700_000_000,
	})
	if err != nil {
		t.Fatalf("submit %s/%s: %v", reporter, asset, err)
	}
}

func TestSubmitUnauthorized(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(&models.Submission{Reporter: "stranger", Asset: models.AssetBTC, Price: 1, Volume: 20_000})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if len(e.Entries(models.AssetBTC)) != 0 {
		t.Fatalf("feed entries mutated on rejected submission")
	}
	if _, ok := e.History(models.AssetBTC); ok {
		t.Fatalf("history mutated on rejected submission")
	}
}

func TestSubmitDeauthorizedReporter(t *testing.T) {
	e := newTestEngine(t)
	e.SetAuthorizedProvider("rep-a", false)
	_, err := e.Submit(&models.Submission{Reporter: "rep-a", Asset: models.AssetBTC, Price: 1, Volume: 20_000})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized after revocation, got %v", err)
	}
}

func TestSubmitUnsupportedAsset(t *testing.T) {
	e := newTestEngine(t)
	for _, asset := range []string{"DOGE", "", "btc"} {
		_, err := e.Submit(&models.Submission{Reporter: "rep-a", Asset: asset, Price: 1, Volume: 20_000})
		if !errors.Is(err, ErrInvalidChain) {
			t.Fatalf("asset %q: expected ErrInvalidChain, got %v", asset, err)
		}
	}
}

func TestSubmitBelowMinVolume(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(&models.Submission{Reporter: "rep-a", Asset: models.AssetBTC, Price: 1, Volume: 5_000})
	if !errors.Is(err, ErrBelowMinVolume) {
		t.Fatalf("expected ErrBelowMinVolume, got %v", err)
	}
	if len(e.Entries(models.AssetBTC)) != 0 {
		t.Fatalf("state mutated on under-volume submission")
	}
}

func TestFirstSubmissionNeverDeviationRejected(t *testing.T) {
	e := newTestEngine(t)
	// No baseline: arbitrarily large prices must pass the deviation check.
	submit(t, e, "rep-a", models.AssetBTC, 1<<60, 20_000)
}

func TestHighDeviationRejectedAndHistoryUntouched(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetBTC, 100_000000, 20_000)

	before, _ := e.History(models.AssetBTC)
	// MaxPriceDeviation=1 allows up to +-100% of last price (raw multiplier).
	_, err := e.Submit(&models.Submission{
		Reporter: "rep-b", Asset: models.AssetBTC, Price: 250_000000, Volume: 20_000,
	})
	if !errors.Is(err, ErrHighDeviation) {
		t.Fatalf("expected ErrHighDeviation, got %v", err)
	}
	after, _ := e.History(models.AssetBTC)
	if before != after {
		t.Fatalf("history changed on rejected submission: %+v -> %+v", before, after)
	}
	if len(e.Entries(models.AssetBTC)) != 1 {
		t.Fatalf("feed entry written on rejected submission")
	}
}

func TestDeviationBoundaryAccepted(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetBTC, 100_000000, 20_000)
	// Exactly last*deviation away is still acceptable.
	submit(t, e, "rep-b", models.AssetBTC, 200_000000, 20_000)
}

func TestFeedEntryOverwrittenPerReporter(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetBTC, 100_000000, 20_000)
	submit(t, e, "rep-a", models.AssetBTC, 110_000000, 25_000)

	entries := e.Entries(models.AssetBTC)
	if len(entries) != 1 {
		t.Fatalf("expected single entry per (asset, reporter), got %d", len(entries))
	}
	if entries[0].Price != 110_000000 || entries[0].Volume != 25_000 {
		t.Fatalf("entry not overwritten: %+v", entries[0])
	}
}

func TestWeightedPriceScenario(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetBTC, 50_000_000000, 20_000)
	submit(t, e, "rep-b", models.AssetBTC, 50_100_000000, 15_000)

	got, err := e.WeightedPrice(models.AssetBTC)
	if err != nil {
		t.Fatalf("weighted price: %v", err)
	}
	if got != 50_050_000000 {
		t.Fatalf("weighted price = %d, want 50_050_000000", got)
	}
}

func TestWeightedPriceOrderIndependent(t *testing.T) {
	a := newTestEngine(t)
	submit(t, a, "rep-a", models.AssetETH, 3_000_000000, 20_000)
	submit(t, a, "rep-b", models.AssetETH, 3_100_000000, 20_000)

	b := newTestEngine(t)
	submit(t, b, "rep-b", models.AssetETH, 3_100_000000, 20_000)
	submit(t, b, "rep-a", models.AssetETH, 3_000_000000, 20_000)

	pa, err := a.WeightedPrice(models.AssetETH)
	if err != nil {
		t.Fatalf("engine a: %v", err)
	}
	pb, err := b.WeightedPrice(models.AssetETH)
	if err != nil {
		t.Fatalf("engine b: %v", err)
	}
	if pa != pb {
		t.Fatalf("order dependence: %d vs %d", pa, pb)
	}
}

func TestWeightedPriceInsufficientSources(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetBTC, 50_000_000000, 20_000)

	_, err := e.WeightedPrice(models.AssetBTC)
	if !errors.Is(err, ErrInsufficientSources) {
		t.Fatalf("expected ErrInsufficientSources, got %v", err)
	}
}

func TestWeightedPriceUnsupportedAsset(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.WeightedPrice("DOGE")
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestWeightedPriceFiltersStaleEntries(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetBTC, 50_000_000000, 20_000)
	submit(t, e, "rep-b", models.AssetBTC, 50_100_000000, 20_000)

	// Move the clock past the validity period: both entries become stale and
	// are silently excluded, surfacing as insufficient sources, never as an
	// explicit staleness error.
	e.now = fixedClock(1_700_000_000 + 301)
	_, err := e.WeightedPrice(models.AssetBTC)
	if !errors.Is(err, ErrInsufficientSources) {
		t.Fatalf("expected ErrInsufficientSources for stale feed, got %v", err)
	}
}

func TestWeightedPriceFiltersUnverified(t *testing.T) {
	e := newTestEngine(t, WithVerifier(rejectAllVerifier{}))
	submit(t, e, "rep-a", models.AssetBTC, 50_000_000000, 20_000)
	submit(t, e, "rep-b", models.AssetBTC, 50_100_000000, 20_000)

	_, err := e.WeightedPrice(models.AssetBTC)
	if !errors.Is(err, ErrInsufficientSources) {
		t.Fatalf("expected ErrInsufficientSources with unverified entries, got %v", err)
	}
}

type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify(string, uint64, []byte) bool { return false }

func TestWeightedPriceZeroTotalWeight(t *testing.T) {
	e := newTestEngine(t, WithWeigher(ConstantWeigher{W: 0}))
	submit(t, e, "rep-a", models.AssetBTC, 50_000_000000, 20_000)
	submit(t, e, "rep-b", models.AssetBTC, 50_100_000000, 20_000)

	_, err := e.WeightedPrice(models.AssetBTC)
	if !errors.Is(err, ErrInvalidWeight) {
		t.Fatalf("expected ErrInvalidWeight, got %v", err)
	}
}

func TestVolatilityIndexBootstrapAndSmoothing(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetSOL, 100_000000, 20_000)

	h, ok := e.History(models.AssetSOL)
	if !ok {
		t.Fatalf("history missing after first accept")
	}
	if h.VolatilityIndex != 0 {
		t.Fatalf("volatility index must be zero until a baseline exists, got %d", h.VolatilityIndex)
	}

	submit(t, e, "rep-b", models.AssetSOL, 110_000000, 20_000)
	h, _ = e.History(models.AssetSOL)
	// 0*95 + |110-100|*5 in micro-USD units.
	if want := uint64(10_000000 * 5); h.VolatilityIndex != want {
		t.Fatalf("volatility index = %d, want %d", h.VolatilityIndex, want)
	}
	if h.LastPrice != 110_000000 {
		t.Fatalf("last price = %d, want 110_000000", h.LastPrice)
	}

	submit(t, e, "rep-a", models.AssetSOL, 112_000000, 20_000)
	h, _ = e.History(models.AssetSOL)
	if want := uint64(10_000000*5)*95 + uint64(2_000000*5); h.VolatilityIndex != want {
		t.Fatalf("smoothed index = %d, want %d", h.VolatilityIndex, want)
	}
}

func TestNormalizedPriceZeroVolatility(t *testing.T) {
	e := newTestEngine(t)
	// A single price accepted from each reporter at the same value keeps the
	// first-update volatility at zero for the first accept only; use one
	// accepted submission per reporter with identical prices so the weighted
	// price exists while the index reflects a zero delta.
	submit(t, e, "rep-a", models.AssetBTC, 50_000_000000, 20_000)
	submit(t, e, "rep-b", models.AssetBTC, 50_000_000000, 20_000)

	wp, err := e.WeightedPrice(models.AssetBTC)
	if err != nil {
		t.Fatalf("weighted: %v", err)
	}
	np, err := e.NormalizedPrice(models.AssetBTC)
	if err != nil {
		t.Fatalf("normalized: %v", err)
	}
	if np != wp {
		t.Fatalf("zero volatility must leave price unchanged: %d vs %d", np, wp)
	}
}

func TestNormalizedPriceAppliesAdjustment(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetBTC, 100_000000, 20_000)
	submit(t, e, "rep-b", models.AssetBTC, 102_000000, 20_000)

	wp, err := e.WeightedPrice(models.AssetBTC)
	if err != nil {
		t.Fatalf("weighted: %v", err)
	}
	h, _ := e.History(models.AssetBTC)
	want := wp + wp*h.VolatilityIndex/10_000

	got, err := e.NormalizedPrice(models.AssetBTC)
	if err != nil {
		t.Fatalf("normalized: %v", err)
	}
	if got != want {
		t.Fatalf("normalized price = %d, want %d", got, want)
	}
}

func TestNormalizedPricePropagatesAggregationError(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.NormalizedPrice(models.AssetBTC)
	if !errors.Is(err, ErrInsufficientSources) {
		t.Fatalf("expected propagated ErrInsufficientSources, got %v", err)
	}
}

func TestWithinSlippage(t *testing.T) {
	e := newTestEngine(t) // tolerance 50 bps

	if !e.WithinSlippage(1_000_000000, 1_000_000000) {
		t.Fatalf("identical prices must always be within slippage")
	}
	// 50 bps of 1_000_000000 is 5_000000.
	if !e.WithinSlippage(1_005_000000, 1_000_000000) {
		t.Fatalf("upper band edge must be within slippage")
	}
	if !e.WithinSlippage(995_000000, 1_000_000000) {
		t.Fatalf("lower band edge must be within slippage")
	}
	if e.WithinSlippage(1_005_000001, 1_000_000000) {
		t.Fatalf("above band must fail")
	}
	if e.WithinSlippage(994_999999, 1_000_000000) {
		t.Fatalf("below band must fail")
	}
}

func TestSetParamsAtomicReplace(t *testing.T) {
	e := newTestEngine(t)
	p := models.OracleParams{
		ValidityPeriod:     60,
		MaxPriceDeviation:  2,
		MinRequiredSources: 3,
		MinVolumeThreshold: 1_000,
		SlippageTolerance:  100,
	}
	e.SetParams(p)
	if got := e.Params(); got != p {
		t.Fatalf("params = %+v, want %+v", got, p)
	}
}

func TestPruneStale(t *testing.T) {
	e := newTestEngine(t)
	submit(t, e, "rep-a", models.AssetBTC, 50_000_000000, 20_000)

	e.now = fixedClock(1_700_000_000 + 3600)
	if removed := e.PruneStale(30 * time.Minute); removed != 1 {
		t.Fatalf("pruned %d entries, want 1", removed)
	}
	if len(e.Entries(models.AssetBTC)) != 0 {
		t.Fatalf("entry survived prune")
	}
	// History is intentionally kept: it is the deviation baseline.
	if _, ok := e.History(models.AssetBTC); !ok {
		t.Fatalf("history must survive prune")
	}
}

func TestErrorCodes(t *testing.T) {
	cases := map[error]string{
		ErrNotAuthorized:       "NOT_AUTHORIZED",
		ErrInvalidChain:        "INVALID_CHAIN",
		ErrInvalidPrice:        "INVALID_PRICE",
		ErrInvalidWeight:       "INVALID_WEIGHT",
		ErrStalePrice:          "STALE_PRICE",
		ErrHighDeviation:       "HIGH_DEVIATION",
		ErrInsufficientSources: "INSUFFICIENT_SOURCES",
		ErrBelowMinVolume:      "BELOW_MIN_VOLUME",
	}
	for err, want := range cases {
		if got := ErrorCode(err); got != want {
			t.Fatalf("ErrorCode(%v) = %s, want %s", err, got, want)
		}
	}
	if got := ErrorCode(errors.New("boom")); got != "UNKNOWN" {
		t.Fatalf("unexpected code for unknown error: %s", got)
	}
}
