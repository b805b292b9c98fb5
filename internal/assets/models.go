package assets

// Asset is a token registered for display through wallet_watchAsset.
type Asset struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
}

type Store struct {
	Schema   int                         `json:"schema"`
	Networks map[string]map[string]Asset `json:"networks"` // network -> checksum address -> asset
}
