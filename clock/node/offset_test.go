package node

import "testing"

func TestComputeOffset(t *testing.T) {
	s := ComputeOffset("a", 1000, 1200, 5000, 5150)

	if s.Latency != 100 {
		t.Errorf("latency = %d, want 100", s.Latency)
	}
	if s.AdjustedSlaveTime != 4900 {
		t.Errorf("adjusted slave time = %d, want 4900", s.AdjustedSlaveTime)
	}
	if s.Offset != 250 {
		t.Errorf("offset = %d, want 250", s.Offset)
	}
}

func TestComputeOffsetSlaveAhead(t *testing.T) {
	// Slave clock reads ahead of the master over a 20ms round trip
	s := ComputeOffset("a", 0, 20, 40, 20)
	if s.Latency != 10 || s.Offset != -10 {
		t.Fatalf("latency=%d offset=%d", s.Latency, s.Offset)
	}
}

func TestAverageOffset(t *testing.T) {
	cases := []struct {
		in   []int64
		want int64
	}{
		{[]int64{100, 200, 300}, 200},
		{[]int64{100, 100, 1}, 67},
		{[]int64{-100, -100, -1}, -67},
		{[]int64{5}, 5},
		{[]int64{1, 2}, 1},
		{[]int64{-1, -2}, -1},
	}

	for _, c := range cases {
		got, ok := AverageOffset(c.in)
		if !ok || got != c.want {
			t.Errorf("AverageOffset(%v) = %d, %v; want %d", c.in, got, ok, c.want)
		}
	}

	if _, ok := AverageOffset(nil); ok {
		t.Fatal("empty input must report no average")
	}
}
