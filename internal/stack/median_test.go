package stack

import (
	"math/rand"
	"sort"
	"testing"
)

func TestMedianAgainstSort(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for _, n := range []int{1, 2, 3, 10, 101, 4096} {
		sample := make([]uint16, n)
		for i := range sample {
			sample[i] = uint16(r.Intn(65536))
		}

		got := Median(sample)

		sorted := make([]uint16, n)
		copy(sorted, sample)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		want := sorted[n/2]

		if got != want {
			t.Errorf("n=%d: Median = %d, want %d", n, got, want)
		}
	}
}

func TestMedianLeavesInputUntouched(t *testing.T) {
	sample := []uint16{9, 1, 7, 3, 5, 2, 8}
	original := make([]uint16, len(sample))
	copy(original, sample)

	Median(sample)

	for i := range sample {
		if sample[i] != original[i] {
			t.Fatalf("input modified at %d: %v != %v", i, sample, original)
		}
	}
}

func TestMedianEmpty(t *testing.T) {
	if m := Median(nil); m != 0 {
		t.Fatalf("Median(nil) = %d, want 0", m)
	}
}

func TestMedianConstant(t *testing.T) {
	sample := []uint16{42, 42, 42, 42, 42}
	if m := Median(sample); m != 42 {
		t.Fatalf("Median = %d, want 42", m)
	}
}
