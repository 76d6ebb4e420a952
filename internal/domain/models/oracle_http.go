package models

// Requests and responses for the oracle HTTP endpoints. Defined in domain for
// consistency and reuse.

type SubmitRequest struct {
	Asset     string `json:"asset" validate:"required"`
	Price     uint64 `json:"price" validate:"required,gt=0"`
	Volume    uint64 `json:"volume" validate:"gte=0"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
	Proof     []byte `json:"proof,omitempty"`
}

type SubmitResponse struct {
	Accepted bool       `json:"accepted"`
	Entry    *FeedEntry `json:"entry,omitempty"`
}

type PriceRequest struct {
	Asset string `param:"asset" validate:"required"`
}

type PriceResponse struct {
	Asset   string `json:"asset"`
	Price   uint64 `json:"price"`
	Sources int    `json:"sources"`
	At      int64  `json:"at"`
}

type SlippageCheckRequest struct {
	Price    uint64 `json:"price" validate:"required,gt=0"`
	Expected uint64 `json:"expected_price" validate:"required,gt=0"`
}

type SlippageCheckResponse struct {
	Price     uint64 `json:"price"`
	Expected  uint64 `json:"expected_price"`
	Tolerance uint64 `json:"tolerance"`
	Within    bool   `json:"within"`
}

type ProviderRequest struct {
	Reporter   string `json:"reporter" validate:"required"`
	Authorized bool   `json:"authorized"`
}

type ConfigUpdateRequest struct {
	ValidityPeriod     int64  `json:"validity_period" validate:"required,gt=0"`
	MaxPriceDeviation  uint64 `json:"max_price_deviation" validate:"required,gt=0"`
	MinRequiredSources int    `json:"min_required_sources" validate:"required,gte=1"`
	MinVolumeThreshold uint64 `json:"min_volume_threshold" validate:"gte=0"`
	SlippageTolerance  uint64 `json:"slippage_tolerance" validate:"required,gt=0,lte=10000"`
}

type AuditQueryRequest struct {
	Asset string `query:"asset" validate:"required"`
	From  string `query:"from"`
	To    string `query:"to"`
	Limit int    `query:"limit" default:"100" validate:"gte=1,lte=10000"`
}
