package main

import (
	"math"
	"testing"
)

func TestCells(t *testing.T) {
	tests := []struct {
		res  [3]int32
		want int
	}{
		{[3]int32{2, 3, 4}, 24},
		{[3]int32{1, 1, 1}, 1},
		{[3]int32{0, 4, 4}, 0},
		{[3]int32{4, -1, 4}, 0},
		{[3]int32{256, 256, 256}, 1 << 24},
		{[3]int32{math.MaxInt32, math.MaxInt32, 1}, 0},
		{[3]int32{math.MaxInt32, math.MaxInt32, 3}, 0},
		{[3]int32{math.MaxInt32, math.MaxInt32, math.MaxInt32}, 0},
	}
	for _, tt := range tests {
		if got := cells(tt.res); got != tt.want {
			t.Errorf("cells(%v) = %d, want %d", tt.res, got, tt.want)
		}
	}
}
