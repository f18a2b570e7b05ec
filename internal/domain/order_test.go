package domain

import (
	"testing"
)

func TestOrder_Crosses(t *testing.T) {
	tests := []struct {
		name  string
		side  Side
		limit string
		price string
		want  bool
	}{
		{"buy below limit", SideBuy, "100", "99.5", true},
		{"buy at limit", SideBuy, "100", "100", true},
		{"buy above limit", SideBuy, "100", "100.01", false},
		{"sell above limit", SideSell, "100", "101", true},
		{"sell at limit", SideSell, "100", "100", true},
		{"sell below limit", SideSell, "100", "99.99", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Side: tt.side, LimitPrice: d(tt.limit)}
			if got := o.Crosses(d(tt.price)); got != tt.want {
				t.Errorf("Crosses(%s) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestBuyReservation_IncludesFee(t *testing.T) {
	got := BuyReservation(d("2"), d("150"), d("0.001"))
	if !got.Equal(d("300.3")) {
		t.Errorf("BuyReservation() = %s, want 300.3", got)
	}
}

func TestValidOrderStatus(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusOpen, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected} {
		if !ValidOrderStatus(s) {
			t.Errorf("ValidOrderStatus(%q) = false", s)
		}
	}
	if ValidOrderStatus("pending") {
		t.Error(`ValidOrderStatus("pending") = true`)
	}
	if ValidSide("bid") || !ValidSide(SideSell) {
		t.Error("ValidSide mismatch")
	}
	if ValidOrderType("stop") || !ValidOrderType(OrderTypeLimit) {
		t.Error("ValidOrderType mismatch")
	}
}
