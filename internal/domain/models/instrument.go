package models

import "time"

// AssetType categorizes an instrument.
type AssetType string

const (
	AssetCurrency  AssetType = "CURRENCY"
	AssetCrypto    AssetType = "CRYPTO"
	AssetCommodity AssetType = "COMMODITY"
	AssetEquity    AssetType = "EQUITY"
)

// Valid reports whether a is one of the known asset types.
func (a AssetType) Valid() bool {
	switch a {
	case AssetCurrency, AssetCrypto, AssetCommodity, AssetEquity:
		return true
	default:
		return false
	}
}

// Instrument is a tradable asset identified by a unique symbol.
type Instrument struct {
	ID          int64      `json:"id"`
	Symbol      string     `json:"symbol"`
	Name        string     `json:"name"`
	AssetType   AssetType  `json:"asset_type"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// InstrumentPatch carries a partial update; nil fields are left untouched.
type InstrumentPatch struct {
	Symbol      *string
	Name        *string
	AssetType   *AssetType
	Description *string
}

// Apply copies the non-nil fields of p onto inst.
func (p InstrumentPatch) Apply(inst *Instrument) {
	if p.Symbol != nil {
		inst.Symbol = *p.Symbol
	}
	if p.Name != nil {
		inst.Name = *p.Name
	}
	if p.AssetType != nil {
		inst.AssetType = *p.AssetType
	}
	if p.Description != nil {
		d := *p.Description
		inst.Description = &d
	}
}
