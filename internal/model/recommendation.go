package model

// StreamSizing is the recommended number of streams for a trade.
type StreamSizing struct {
	SweetSpotCount int64  `json:"sweet_spot_count"`
	Volume         string `json:"volume"`
	ReserveIn      string `json:"reserve_in"`
	ReserveOut     string `json:"reserve_out"`
}

// GasAllowance is the total gas budget to authorize for a streamed trade.
type GasAllowance struct {
	GasPriceWei       string `json:"gas_price_wei"`
	GasUnitsPerStream string `json:"gas_units_per_stream"`
	StreamCount       int64  `json:"stream_count"`
	TotalWei          string `json:"total_wei"`
}

// SlippageSavings compares a single swap with the same volume split into streams.
// Outputs are human units of the output token.
type SlippageSavings struct {
	Venue                    string `json:"venue"`
	FeeTier                  uint32 `json:"fee_tier,omitempty"`
	StreamCount              int64  `json:"stream_count"`
	SingleShotOutput         string `json:"single_shot_output"`
	StreamedEquivalentOutput string `json:"streamed_equivalent_output"`
	Savings                  string `json:"savings"`
	SavingsBps               string `json:"savings_bps"`
	Approximate              bool   `json:"approximate,omitempty"`
}

// Recommendation is the combined sizing response for a trade.
type Recommendation struct {
	TokenIn  TokenInfo       `json:"token_in"`
	TokenOut TokenInfo       `json:"token_out"`
	Volume   string          `json:"volume"`
	Reserves ReserveSnapshot `json:"reserves"`
	Sizing   StreamSizing    `json:"sizing"`
	Gas      GasAllowance    `json:"gas"`
	Savings  SlippageSavings `json:"savings"`
}
