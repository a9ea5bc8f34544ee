package flashlayout

import (
	"testing"

	"github.com/apfaudio/tiliqua-sub000/pkg/layout"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

func TestBootloaderAddresses(t *testing.T) {
	bl := ForBootloader()

	if got, want := bl.BitstreamAddr(), layout.BootloaderBitstreamAddr; got != want {
		t.Errorf("BitstreamAddr = 0x%X, want 0x%X", got, want)
	}
	if got, want := bl.ManifestAddr(), layout.SlotBitstreamBase-layout.ManifestSize; got != want {
		t.Errorf("ManifestAddr = 0x%X, want 0x%X", got, want)
	}
	if got, want := bl.OptionsBase(), layout.OptionsBaseAddr; got != want {
		t.Errorf("OptionsBase = 0x%X, want 0x%X", got, want)
	}

	if _, err := bl.FirmwareBase(); err == nil {
		t.Fatalf("expected error requesting firmware base for bootloader")
	} else if tqerr.KindOf(err) != tqerr.KindBootloaderHasNoFirmwareBase {
		t.Errorf("expected KindBootloaderHasNoFirmwareBase, got %v", tqerr.KindOf(err))
	}
}

func TestSlotZeroAddresses(t *testing.T) {
	s0 := ForSlot(0)

	if got, want := s0.BitstreamAddr(), layout.SlotBitstreamBase; got != want {
		t.Errorf("BitstreamAddr = 0x%X, want 0x%X", got, want)
	}
	if got, want := s0.ManifestAddr(), layout.SlotBitstreamBase+layout.SlotSize-layout.ManifestSize; got != want {
		t.Errorf("ManifestAddr = 0x%X, want 0x%X", got, want)
	}
	fw, err := s0.FirmwareBase()
	if err != nil {
		t.Fatalf("FirmwareBase: %v", err)
	}
	if fw != layout.FirmwareBaseSlot0 {
		t.Errorf("FirmwareBase = 0x%X, want 0x%X", fw, layout.FirmwareBaseSlot0)
	}
	if got, want := s0.OptionsBase(), layout.OptionsBaseAddr+layout.SlotSize; got != want {
		t.Errorf("OptionsBase = 0x%X, want 0x%X", got, want)
	}
}

func TestSlotAddressesIncreaseWithSlotNumber(t *testing.T) {
	s1 := ForSlot(1)
	s2 := ForSlot(2)

	if s2.BitstreamAddr()-s1.BitstreamAddr() != layout.SlotSize {
		t.Errorf("expected consecutive slots to be SlotSize apart")
	}
	fw1, _ := s1.FirmwareBase()
	fw2, _ := s2.FirmwareBase()
	if fw2-fw1 != layout.SlotSize {
		t.Errorf("expected consecutive firmware bases to be SlotSize apart")
	}
}

func TestSlotStartEndFromAddr(t *testing.T) {
	for n := 0; n < layout.NManifests; n++ {
		start := SlotStartAddr(n)
		end := SlotEndAddr(n)
		if end-start != layout.SlotSize {
			t.Errorf("slot %d: end-start = 0x%X, want 0x%X", n, end-start, layout.SlotSize)
		}
		if got := SlotFromAddr(start); got != n {
			t.Errorf("SlotFromAddr(0x%X) = %d, want %d", start, got, n)
		}
	}
}

func TestCheckSlotBounds(t *testing.T) {
	if err := CheckSlotBounds(0); err != nil {
		t.Errorf("slot 0 should be valid: %v", err)
	}
	if err := CheckSlotBounds(layout.NManifests - 1); err != nil {
		t.Errorf("last slot should be valid: %v", err)
	}
	if err := CheckSlotBounds(layout.NManifests); err == nil {
		t.Errorf("expected error for slot == NManifests")
	} else if tqerr.KindOf(err) != tqerr.KindSlotOutOfRange {
		t.Errorf("expected KindSlotOutOfRange, got %v", tqerr.KindOf(err))
	}
	if err := CheckSlotBounds(-1); err == nil {
		t.Errorf("expected error for negative slot")
	}
}
