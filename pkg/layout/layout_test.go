package layout

import "testing"

func TestRoundUpPageAlreadyAligned(t *testing.T) {
	if got := RoundUpPage(FlashPageSz); got != FlashPageSz {
		t.Errorf("RoundUpPage(%d) = %d, want %d", FlashPageSz, got, FlashPageSz)
	}
}

func TestRoundUpPageRoundsUp(t *testing.T) {
	if got, want := RoundUpPage(1), FlashPageSz; got != want {
		t.Errorf("RoundUpPage(1) = %d, want %d", got, want)
	}
	if got, want := RoundUpPage(FlashPageSz+1), 2*FlashPageSz; got != want {
		t.Errorf("RoundUpPage(FlashPageSz+1) = %d, want %d", got, want)
	}
}

func TestRoundUpZero(t *testing.T) {
	if got := RoundUpPage(0); got != 0 {
		t.Errorf("RoundUpPage(0) = %d, want 0", got)
	}
}

func TestRoundUpArbitraryAlignment(t *testing.T) {
	if got, want := RoundUp(10, 8), 16; got != want {
		t.Errorf("RoundUp(10, 8) = %d, want %d", got, want)
	}
	if got, want := RoundUp(16, 8), 16; got != want {
		t.Errorf("RoundUp(16, 8) = %d, want %d", got, want)
	}
}
