package store

import "testing"

func TestPoolDefaults(t *testing.T) {
	cases := []struct {
		in   Pool
		want Pool
	}{
		{Pool{}, Pool{MaxOpen: 20, MaxIdle: 10}},
		{Pool{MaxOpen: 4}, Pool{MaxOpen: 4, MaxIdle: 4}},
		{Pool{MaxOpen: 50, MaxIdle: 25}, Pool{MaxOpen: 50, MaxIdle: 25}},
		{Pool{MaxOpen: 5, MaxIdle: 9}, Pool{MaxOpen: 5, MaxIdle: 5}},
	}
	for _, tc := range cases {
		if got := tc.in.withDefaults(); got != tc.want {
			t.Fatalf("withDefaults(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
