package tftp

import "testing"

func TestBlockNumberWrap(t *testing.T) {
	tests := []struct {
		name string
		base BlockNumber
		next BlockNumber
	}{
		{"start of transfer", 0, 1},
		{"ordinary increment", 41, 42},
		{"wrap skips zero", 0xFFFF, 1},
		{"before wrap", 0xFFFE, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.base.Next(); got != tt.next {
				t.Errorf("Next(%d): expected %d, got %d", tt.base, tt.next, got)
			}
		})
	}

	if got := BlockNumber(1).Prev(); got != 0xFFFF {
		t.Errorf("Prev(1): expected 0xFFFF, got %d", got)
	}
	if got := BlockNumber(2).Prev(); got != 1 {
		t.Errorf("Prev(2): expected 1, got %d", got)
	}
}

func TestBlockNumberNextPrevInverse(t *testing.T) {
	// on the wrapping domain (zero excluded) Prev inverts Next
	for _, b := range []BlockNumber{1, 2, 511, 512, 0x7FFF, 0xFFFE, 0xFFFF} {
		if got := b.Next().Prev(); got != b {
			t.Errorf("Next then Prev of %d: got %d", b, got)
		}
	}
}
