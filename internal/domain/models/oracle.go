package models

// Supported asset identifiers. The set is fixed; submissions for anything
// else are rejected.
const (
	AssetBTC = "BTC"
	AssetETH = "ETH"
	AssetSOL = "SOL"
)

// SupportedAssets lists every asset the oracle accepts, in reporting order.
func SupportedAssets() []string {
	return []string{AssetBTC, AssetETH, AssetSOL}
}

// Submission is a raw price observation from one reporter, before
// validation. Price and Volume are unsigned fixed-point micro-USD values
// (6 decimal places). Timestamp is unix seconds.
type Submission struct {
	Reporter  string `json:"reporter"`
	Asset     string `json:"asset"`
	Price     uint64 `json:"price"`
	Volume    uint64 `json:"volume"`
	Timestamp int64  `json:"t"`
	Proof     []byte `json:"proof,omitempty"`
}

// FeedEntry is the latest accepted observation from one reporter for one
// asset. Exactly one entry exists per (asset, reporter) pair; a new accepted
// submission overwrites the prior entry.
type FeedEntry struct {
	Asset     string `json:"asset"`
	Reporter  string `json:"reporter"`
	Price     uint64 `json:"price"`
	Timestamp int64  `json:"t"`
	Volume    uint64 `json:"volume"`
	Weight    uint32 `json:"weight"`
	Verified  bool   `json:"verified"`
}

// PriceHistory tracks the last accepted price per asset and a smoothed
// accumulator of recent absolute price changes. VolatilityIndex stays zero
// until a second accepted submission establishes a non-zero baseline.
type PriceHistory struct {
	LastPrice       uint64 `json:"last_price"`
	LastUpdate      int64  `json:"last_update"`
	VolatilityIndex uint64 `json:"volatility_index"`
}

// OracleParams is the mutable parameter set. It is replaced wholesale and
// atomically by an administrator; individual fields are never patched.
type OracleParams struct {
	// ValidityPeriod is the max age in seconds of a feed entry considered
	// during aggregation.
	ValidityPeriod int64 `json:"validity_period"`
	// MaxPriceDeviation is a raw multiplier on the last accepted price: a
	// submission is rejected when |new-last| > last*MaxPriceDeviation.
	// Unlike SlippageTolerance it is NOT divided by 10_000.
	MaxPriceDeviation uint64 `json:"max_price_deviation"`
	// MinRequiredSources is the minimum count of valid feed entries needed
	// to produce a weighted price.
	MinRequiredSources int `json:"min_required_sources"`
	// MinVolumeThreshold is the minimum 24h volume (micro-USD) for a
	// submission to be accepted and for an entry to count at read time.
	MinVolumeThreshold uint64 `json:"min_volume_threshold"`
	// SlippageTolerance is a basis-point band for the slippage check.
	SlippageTolerance uint64 `json:"slippage_tolerance"`
}
