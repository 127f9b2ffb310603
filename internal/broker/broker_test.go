package broker

import "testing"

func TestAttemptFromHeader(t *testing.T) {
	tests := []struct {
		value any
		want  int
	}{
		{int32(3), 3},
		{int64(7), 7},
		{4, 4},
		{uint8(2), 2},
		{"5", 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := attemptFromHeader(tt.value); got != tt.want {
			t.Fatalf("attemptFromHeader(%#v) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestDeliveryWithoutAcknowledger(t *testing.T) {
	if err := ack(Delivery{}); err == nil {
		t.Fatal("expected error acking bare delivery")
	}
	if err := nack(Delivery{}, true); err == nil {
		t.Fatal("expected error nacking bare delivery")
	}
}
