package repository

import (
	"errors"
	"testing"

	"PriceServer/internal/domain/models"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("h1")
	if err != nil || tf != models.TFH1 {
		t.Fatalf("got %q %v", tf, err)
	}
	tf, err = ParseTimeframe("")
	if err != nil || tf != "" {
		t.Fatalf("empty: got %q %v", tf, err)
	}
	if _, err := ParseTimeframe("H2"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParsePriceType(t *testing.T) {
	pt, err := ParsePriceType("ohlc_non_regular")
	if err != nil || pt != models.PriceOHLCNonRegular {
		t.Fatalf("got %q %v", pt, err)
	}
	if _, err := ParsePriceType("BAR"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
