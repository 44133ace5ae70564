package util

import "testing"

func TestAlign(t *testing.T) {
	tests := []struct {
		addr      int
		alignment int
		expected  int
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 8, 24},
		{40, 16, 48},
		{3, 1, 3},
	}

	for _, tt := range tests {
		if result := Align(tt.addr, tt.alignment); result != tt.expected {
			t.Errorf("Align(%d, %d) = %d, expected %d", tt.addr, tt.alignment, result, tt.expected)
		}
	}
}

func TestFitsInt32(t *testing.T) {
	tests := []struct {
		value    int64
		expected bool
	}{
		{0, true},
		{-1, true},
		{2147483647, true},
		{-2147483648, true},
		{2147483648, false},
		{-2147483649, false},
		{1 << 40, false},
	}

	for _, tt := range tests {
		if result := FitsInt32(tt.value); result != tt.expected {
			t.Errorf("FitsInt32(%d) = %v, expected %v", tt.value, result, tt.expected)
		}
	}
}
