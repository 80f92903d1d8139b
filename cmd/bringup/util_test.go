package main

import "testing"

func TestJoinInts(t *testing.T) {
	cases := []struct {
		in   []int
		want string
	}{
		{nil, "-"},
		{[]int{7}, "7"},
		{[]int{1, 2, 3}, "1, 2, 3"},
	}
	for _, c := range cases {
		if got := joinInts(c.in); got != c.want {
			t.Errorf("joinInts(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
