package session

import "testing"

func TestShouldRecomputeExpiry(t *testing.T) {
	// Record with timeout 400 and stored expiry 1400, trigger 60: the
	// window opens at 1340.
	tests := []struct {
		name    string
		now     int64
		expires int64
		trigger int64
		want    bool
	}{
		{"no trigger", 1, 1400, 0, true},
		{"100s before expiry", 1300, 1400, 60, false},
		{"50s before expiry", 1350, 1400, 60, true},
		{"exactly at window", 1340, 1400, 60, true},
		{"past expiry", 1500, 1400, 60, true},
		{"no stored expiry yet", 1000, 0, 60, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRecomputeExpiry(tt.now, tt.expires, tt.trigger); got != tt.want {
				t.Errorf("ShouldRecomputeExpiry(%d, %d, %d) = %v, want %v",
					tt.now, tt.expires, tt.trigger, got, tt.want)
			}
		})
	}
}
