package repository

import (
	"fmt"
	"strings"

	"PriceServer/internal/domain/models"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf models.TimeFrame) bool {
	switch tf {
	case models.TFM1, models.TFM5, models.TFM15, models.TFM30,
		models.TFH1, models.TFH4, models.TFD1, models.TFW1, models.TFMN1, models.TFCustom:
		return true
	default:
		return false
	}
}

// IsValidPriceType returns true if pt is a supported price type.
func IsValidPriceType(pt models.PriceType) bool {
	switch pt {
	case models.PriceTick, models.PriceOHLC, models.PriceOHLCNonRegular:
		return true
	default:
		return false
	}
}

// ParseTimeframe converts a raw string to a timeframe. Empty input yields the empty
// (unfiltered) timeframe.
func ParseTimeframe(s string) (models.TimeFrame, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	tf := models.TimeFrame(s)
	if !IsValidTimeframe(tf) {
		return "", fmt.Errorf("%w: unknown timeframe %q", ErrInvalidInput, s)
	}
	return tf, nil
}

// ParsePriceType converts a raw string to a price type. Empty input yields the empty
// (unfiltered) price type.
func ParsePriceType(s string) (models.PriceType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	pt := models.PriceType(s)
	if !IsValidPriceType(pt) {
		return "", fmt.Errorf("%w: unknown price type %q", ErrInvalidInput, s)
	}
	return pt, nil
}
