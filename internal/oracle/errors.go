package oracle

import "errors"

// Every fallible engine operation returns one of these. The engine never
// mutates state when it returns an error.
var (
	// ErrNotAuthorized is returned when the submitting reporter is not in
	// the authorization registry.
	ErrNotAuthorized = errors.New("reporter not authorized")

	// ErrInvalidChain is returned for an asset outside the supported set.
	ErrInvalidChain = errors.New("unsupported asset")

	// ErrInvalidPrice is returned when a price cannot be produced for the
	// requested asset on the read path.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidWeight guards against a zero total weight during aggregation.
	ErrInvalidWeight = errors.New("zero total weight")

	// ErrStalePrice is reserved. Stale entries are silently excluded from
	// aggregation instead of raising; keep the kind so callers can depend
	// on a stable taxonomy if that ever changes.
	ErrStalePrice = errors.New("stale price")

	// ErrHighDeviation is returned when a submission moves too far from the
	// last accepted price for the asset.
	ErrHighDeviation = errors.New("price deviation too high")

	// ErrInsufficientSources is returned when fewer than the configured
	// minimum of valid feed entries exist at aggregation time.
	ErrInsufficientSources = errors.New("insufficient valid sources")

	// ErrBelowMinVolume is returned when the submission's 24h volume is
	// under the configured threshold.
	ErrBelowMinVolume = errors.New("volume below minimum threshold")
)

// ErrorCode maps an engine error to a stable machine-readable code for the
// API layer and metrics labels.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED"
	case errors.Is(err, ErrInvalidChain):
		return "INVALID_CHAIN"
	case errors.Is(err, ErrInvalidPrice):
		return "INVALID_PRICE"
	case errors.Is(err, ErrInvalidWeight):
		return "INVALID_WEIGHT"
	case errors.Is(err, ErrStalePrice):
		return "STALE_PRICE"
	case errors.Is(err, ErrHighDeviation):
		return "HIGH_DEVIATION"
	case errors.Is(err, ErrInsufficientSources):
		return "INSUFFICIENT_SOURCES"
	case errors.Is(err, ErrBelowMinVolume):
		return "BELOW_MIN_VOLUME"
	default:
		return "UNKNOWN"
	}
}
