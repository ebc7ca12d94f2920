package dsmath

import "testing"

func TestCeilDiv(t *testing.T) {
	cases := []struct{ x, y, want int }{
		{0, 1024, 0},
		{1, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{5, 0, 0},
	}
	for _, c := range cases {
		if got := CeilDiv(c.x, c.y); got != c.want {
			t.Errorf("CeilDiv(%d, %d) = %d, want %d", c.x, c.y, got, c.want)
		}
	}
}

func TestMinMax(t *testing.T) {
	if got := Min(3, 7); got != 3 {
		t.Errorf("Min(3, 7) = %d, want 3", got)
	}
	if got := Max(3, 7); got != 7 {
		t.Errorf("Max(3, 7) = %d, want 7", got)
	}
}
