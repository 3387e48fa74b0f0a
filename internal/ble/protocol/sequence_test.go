package protocol

import "testing"

func TestSequenceWraps(t *testing.T) {
	var s Sequence
	for i := 0; i < 256; i++ {
		if got := s.Next(); int(got) != i {
			t.Fatalf("Next() call %d = %d, want %d", i, got, i)
		}
	}
	if got := s.Next(); got != 0 {
		t.Errorf("Next() after 256 calls = %d, want 0", got)
	}
	if got := s.Next(); got != 1 {
		t.Errorf("Next() after wrap = %d, want 1", got)
	}
}
