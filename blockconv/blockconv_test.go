package blockconv

import (
	"math"
	"testing"
)

func nearlyEqualSlice(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("index %d: got %v want %v", i, got, want)
		}
	}
}

func TestIdentityFilterSinglePartitionIsPassthrough(t *testing.T) {
	ctx, err := NewContext(4)
	if err != nil {
		t.Fatal(err)
	}
	filter, err := NewFilter(ctx, []float64{1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if filter.NumPartitions() != 1 {
		t.Fatalf("expected 1 partition, got %d", filter.NumPartitions())
	}

	conv, err := NewConvolver(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := conv.SetFilter(filter); err != nil {
		t.Fatal(err)
	}

	out := make([]float64, 4)
	if err := conv.FilterBlock([]float64{1, 2, 3, 4}, out); err != nil {
		t.Fatal(err)
	}
	nearlyEqualSlice(t, out, []float64{1, 2, 3, 4}, 1e-6)
}

// TestTwoPartitionIdentityMatchesSinglePartition regresses the ring-buffer
// indexing: a filter split into two partitions where only the first
// partition is non-zero must behave exactly like a one-partition filter.
func TestTwoPartitionIdentityMatchesSinglePartition(t *testing.T) {
	ctx, err := NewContext(4)
	if err != nil {
		t.Fatal(err)
	}
	filter, err := NewFilter(ctx, []float64{1, 0, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if filter.NumPartitions() != 2 {
		t.Fatalf("expected 2 partitions, got %d", filter.NumPartitions())
	}

	conv, err := NewConvolver(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := conv.SetFilter(filter); err != nil {
		t.Fatal(err)
	}

	out := make([]float64, 4)
	if err := conv.FilterBlock([]float64{1, 2, 3, 4}, out); err != nil {
		t.Fatal(err)
	}
	nearlyEqualSlice(t, out, []float64{1, 2, 3, 4}, 1e-6)

	out2 := make([]float64, 4)
	if err := conv.FilterBlock([]float64{5, 6, 7, 8}, out2); err != nil {
		t.Fatal(err)
	}
	nearlyEqualSlice(t, out2, []float64{5, 6, 7, 8}, 1e-6)
}

// TestOneBlockDelayFilterUsesPreviousHistory exercises partition p=1
// directly: a unit impulse one partition into the filter must delay the
// input by exactly one block, proving the ring buffer's freshest slot and
// its one-block-old neighbor are read in the right order.
func TestOneBlockDelayFilterUsesPreviousHistory(t *testing.T) {
	ctx, err := NewContext(4)
	if err != nil {
		t.Fatal(err)
	}
	filter, err := NewFilter(ctx, []float64{0, 0, 0, 0, 1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}

	conv, err := NewConvolver(ctx, filter.NumPartitions())
	if err != nil {
		t.Fatal(err)
	}
	if err := conv.SetFilter(filter); err != nil {
		t.Fatal(err)
	}

	out1 := make([]float64, 4)
	if err := conv.FilterBlock([]float64{1, 2, 3, 4}, out1); err != nil {
		t.Fatal(err)
	}
	nearlyEqualSlice(t, out1, []float64{0, 0, 0, 0}, 1e-6)

	out2 := make([]float64, 4)
	if err := conv.FilterBlock([]float64{5, 6, 7, 8}, out2); err != nil {
		t.Fatal(err)
	}
	nearlyEqualSlice(t, out2, []float64{1, 2, 3, 4}, 1e-6)
}

func TestCrossfadeBlendsOldAndNewLinearly(t *testing.T) {
	ctx, err := NewContext(4)
	if err != nil {
		t.Fatal(err)
	}
	identity, err := NewFilter(ctx, []float64{1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	silent, err := NewFilter(ctx, []float64{0, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}

	conv, err := NewConvolver(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := conv.SetFilter(identity); err != nil {
		t.Fatal(err)
	}
	if err := conv.CrossfadeFilter(silent); err != nil {
		t.Fatal(err)
	}

	out := make([]float64, 4)
	if err := conv.FilterBlock([]float64{1, 2, 3, 4}, out); err != nil {
		t.Fatal(err)
	}
	// out[i] = (1-t)*identityOut[i] + t*silentOut[i], t = i/3, silentOut == 0.
	want := []float64{1, 2 * (1 - 1.0/3), 3 * (1 - 2.0/3), 0}
	nearlyEqualSlice(t, out, want, 1e-6)

	// The crossfade is scoped to exactly one block: the next block must
	// use the new (silent) filter alone.
	out2 := make([]float64, 4)
	if err := conv.FilterBlock([]float64{9, 9, 9, 9}, out2); err != nil {
		t.Fatal(err)
	}
	nearlyEqualSlice(t, out2, []float64{0, 0, 0, 0}, 1e-6)
}

func TestCrossfadeBeforeAnyFilterActsAsSetFilter(t *testing.T) {
	ctx, err := NewContext(4)
	if err != nil {
		t.Fatal(err)
	}
	identity, err := NewFilter(ctx, []float64{1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	conv, err := NewConvolver(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := conv.CrossfadeFilter(identity); err != nil {
		t.Fatal(err)
	}
	out := make([]float64, 4)
	if err := conv.FilterBlock([]float64{1, 2, 3, 4}, out); err != nil {
		t.Fatal(err)
	}
	nearlyEqualSlice(t, out, []float64{1, 2, 3, 4}, 1e-6)
}

func TestFilterBlockRejectsWrongLength(t *testing.T) {
	ctx, err := NewContext(4)
	if err != nil {
		t.Fatal(err)
	}
	identity, err := NewFilter(ctx, []float64{1, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	conv, _ := NewConvolver(ctx, 1)
	_ = conv.SetFilter(identity)

	out := make([]float64, 4)
	if err := conv.FilterBlock([]float64{1, 2, 3}, out); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestSetFilterRejectsPartitionOverflow(t *testing.T) {
	ctx, err := NewContext(4)
	if err != nil {
		t.Fatal(err)
	}
	big, err := NewFilter(ctx, make([]float64, 32)) // 8 partitions
	if err != nil {
		t.Fatal(err)
	}
	conv, err := NewConvolver(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := conv.SetFilter(big); err == nil {
		t.Fatal("expected partition overflow error")
	}
}
