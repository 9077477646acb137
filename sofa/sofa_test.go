package sofa

import "testing"

func TestOffsetCanonicalOrder(t *testing.T) {
	tests := []struct {
		m, r, e             int
		numReceivers, numEmitters int
		want                int
	}{
		{m: 0, r: 0, e: 0, numReceivers: 2, numEmitters: 3, want: 0},
		{m: 0, r: 0, e: 1, numReceivers: 2, numEmitters: 3, want: 1},
		{m: 0, r: 1, e: 0, numReceivers: 2, numEmitters: 3, want: 3},
		{m: 1, r: 0, e: 0, numReceivers: 2, numEmitters: 3, want: 6},
		{m: 1, r: 1, e: 2, numReceivers: 2, numEmitters: 3, want: 6 + 3 + 2},
	}

	for _, tt := range tests {
		got := Offset(tt.m, tt.r, tt.e, tt.numReceivers, tt.numEmitters)
		if got != tt.want {
			t.Fatalf("Offset(%d,%d,%d,%d,%d) = %d, want %d",
				tt.m, tt.r, tt.e, tt.numReceivers, tt.numEmitters, got, tt.want)
		}
	}
}

func TestOffsetIsStrictlyIncreasingByEmitterThenReceiverThenMeasurement(t *testing.T) {
	const nr, ne = 4, 2
	prev := -1
	for m := 0; m < 3; m++ {
		for r := 0; r < nr; r++ {
			for e := 0; e < ne; e++ {
				got := Offset(m, r, e, nr, ne)
				if got != prev+1 {
					t.Fatalf("Offset(%d,%d,%d) = %d, want consecutive index %d", m, r, e, got, prev+1)
				}
				prev = got
			}
		}
	}
}
