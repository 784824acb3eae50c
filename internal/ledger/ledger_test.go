package ledger

import "testing"

func TestSessionRemaining(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		checkedIn int
		want      int
	}{
		{"empty session", 10, 0, 10},
		{"partially filled", 10, 7, 3},
		{"exactly full", 10, 10, 0},
		{"over capacity via override", 10, 12, 0},
		{"zero capacity", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SessionRemaining(tt.capacity, tt.checkedIn); got != tt.want {
				t.Errorf("SessionRemaining(%d, %d) = %d, want %d", tt.capacity, tt.checkedIn, got, tt.want)
			}
		})
	}
}

func TestProductAvailability(t *testing.T) {
	tests := []struct {
		name      string
		remaining []int
		want      int
	}{
		{"single session", []int{5}, 5},
		{"bundle takes the minimum", []int{7, 2, 9}, 2},
		{"one full session blocks the bundle", []int{4, 0, 9}, 0},
		{"all equal", []int{3, 3, 3}, 3},
		{"no sessions", nil, 0},
		{"negative input clamps to zero", []int{5, -2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProductAvailability(tt.remaining...); got != tt.want {
				t.Errorf("ProductAvailability(%v) = %d, want %d", tt.remaining, got, tt.want)
			}
		})
	}
}

func TestAtCapacity(t *testing.T) {
	if AtCapacity(10, 9) {
		t.Error("event with one spot left reported at capacity")
	}
	if !AtCapacity(10, 10) {
		t.Error("full event not reported at capacity")
	}
	if !AtCapacity(10, 11) {
		t.Error("overridden-past-capacity event not reported at capacity")
	}
}
