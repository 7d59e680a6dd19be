package scheduler

import "testing"

func seqTokens(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i + 1)
	}
	return out
}

func TestRing(t *testing.T) {
	t.Run("window wraps around", func(t *testing.T) {
		r := newRing(seqTokens(5))
		r.advance(3)

		got := r.window(4)
		want := []uint32{4, 5, 1, 2}
		assertTokens(t, "window", got, want)
	})

	t.Run("window capped at length", func(t *testing.T) {
		r := newRing(seqTokens(3))
		if got := r.window(10); len(got) != 3 {
			t.Errorf("window size = %d, want 3", len(got))
		}
	})

	t.Run("advance on empty ring", func(t *testing.T) {
		r := newRing(nil)
		r.advance(5) // must not panic
		if got := r.window(3); got != nil {
			t.Errorf("window on empty ring = %v, want nil", got)
		}
	})

	t.Run("advance accumulates modulo length", func(t *testing.T) {
		r := newRing(seqTokens(4))
		r.advance(3)
		r.advance(3)
		got := r.window(2)
		want := []uint32{3, 4}
		assertTokens(t, "window", got, want)
	})
}

func TestClampStride(t *testing.T) {
	tests := []struct {
		name   string
		stride int
		n      int
		want   int
	}{
		{"normal", 300, 1000, 300},
		{"stride equals length", 5, 5, 4},
		{"stride exceeds length", 300, 10, 9},
		{"length one", 3, 1, 1},
		{"zero stride", 0, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampStride(tt.stride, tt.n); got != tt.want {
				t.Errorf("clampStride(%d, %d) = %d, want %d", tt.stride, tt.n, got, tt.want)
			}
		})
	}
}

// TestRingCoverage verifies the scheduling property behind stride rotation:
// for queue length L, stride s (1 <= s < L) and window w >= s, every token
// appears in some window within ceil(L/s) advances.
func TestRingCoverage(t *testing.T) {
	cases := []struct {
		L, s, w int
	}{
		{10, 3, 4},
		{7, 2, 3},
		{100, 30, 35},
		{5, 1, 1},
	}

	for _, tc := range cases {
		r := newRing(seqTokens(tc.L))
		seen := make(map[uint32]bool)

		cycles := (tc.L + tc.s - 1) / tc.s // ceil(L/s)
		for _, token := range r.window(tc.w) {
			seen[token] = true
		}
		for i := 0; i < cycles; i++ {
			r.advance(tc.s)
			for _, token := range r.window(tc.w) {
				seen[token] = true
			}
		}

		if len(seen) != tc.L {
			t.Errorf("L=%d s=%d w=%d: covered %d tokens within %d cycles, want %d",
				tc.L, tc.s, tc.w, len(seen), cycles, tc.L)
		}
	}
}
