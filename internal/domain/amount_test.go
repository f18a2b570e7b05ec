package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateQuantity(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"whole", "1", false},
		{"satoshi", "0.00000001", false},
		{"eight places", "12.34567891", false},
		{"zero", "0", true},
		{"negative", "-1.5", true},
		{"nine places", "0.000000001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuantity("quantity", decimal.RequireFromString(tt.input))
			if tt.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("ValidateQuantity(%s) = %v, want ValidationError", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateQuantity(%s) unexpected error: %v", tt.input, err)
			}
		})
	}
}

func TestValidateCash(t *testing.T) {
	max := decimal.NewFromInt(1_000_000)
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"typical", "10000", false},
		{"cents", "99.99", false},
		{"at max", "1000000", false},
		{"above max", "1000000.01", true},
		{"three places", "10.001", true},
		{"zero", "0", true},
		{"negative", "-5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCash("initial_balance", decimal.RequireFromString(tt.input), max)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCash(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestFee(t *testing.T) {
	got := Fee(decimal.RequireFromString("1234.5"), decimal.RequireFromString("0.001"))
	want := decimal.RequireFromString("1.2345")
	if !got.Equal(want) {
		t.Errorf("Fee() = %s, want %s", got, want)
	}

	// Rounded to AmountScale places.
	got = Fee(decimal.RequireFromString("0.000000015"), decimal.RequireFromString("0.5"))
	if got.Exponent() < -AmountScale {
		t.Errorf("Fee() = %s has more than %d decimal places", got, AmountScale)
	}
}
