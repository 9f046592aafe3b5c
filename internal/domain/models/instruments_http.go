package models

type InstrumentCreateRequest struct {
	Symbol      string  `json:"symbol" validate:"required,max=20"`
	Name        string  `json:"name" validate:"required,max=100"`
	AssetType   string  `json:"asset_type" validate:"required,oneof=CURRENCY CRYPTO COMMODITY EQUITY"`
	Description *string `json:"description"`
}

type InstrumentUpdateRequest struct {
	ID          int64   `param:"id" json:"-" validate:"-"`
	Symbol      *string `json:"symbol" validate:"omitempty,min=1,max=20"`
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	AssetType   *string `json:"asset_type" validate:"omitempty,oneof=CURRENCY CRYPTO COMMODITY EQUITY"`
	Description *string `json:"description"`
}

type InstrumentListRequest struct {
	Page int `query:"page" default:"1" validate:"gte=1"`
	Size int `query:"size" default:"50" validate:"gte=1,lte=1000"`
}

type InstrumentListResponse struct {
	Items []Instrument `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
}
