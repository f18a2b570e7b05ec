package domain

import (
	"errors"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "initial_balance must be > 0"}
	if err.Error() != "initial_balance must be > 0" {
		t.Errorf("Error() = %q, want %q", err.Error(), "initial_balance must be > 0")
	}
}

func TestValidationError_MatchesWithErrorsAs(t *testing.T) {
	var err error = &ValidationError{Message: "test"}
	var target *ValidationError
	if !errors.As(err, &target) {
		t.Fatal("errors.As should match *ValidationError")
	}
	if target.Message != "test" {
		t.Errorf("Message = %q, want %q", target.Message, "test")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrAccountNotFound,
		ErrAccountLimitReached,
		ErrOrderNotFound,
		ErrOrderNotCancellable,
		ErrInsufficientBalance,
		ErrInsufficientHoldings,
		ErrNoMarketPrice,
		ErrSymbolNotFound,
		ErrQuoteNotFound,
		ErrSettingsNotFound,
		ErrNotificationNotFound,
		ErrWebhookNotFound,
		ErrUnknownProvider,
		ErrUnknownExchange,
		ErrExchangeNotConfigured,
		ErrUpstreamUnavailable,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
