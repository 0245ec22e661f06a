package main

import "testing"

func TestClampHistoryLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 50},
		{-5, 50},
		{1, 1},
		{500, 500},
		{10000, 500},
	}
	for _, tc := range cases {
		if got := clampHistoryLimit(tc.in); got != tc.want {
			t.Errorf("clampHistoryLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
