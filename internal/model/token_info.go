package model

// TokenInfo captures the immutable ERC20 metadata the engine needs.
type TokenInfo struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
}
