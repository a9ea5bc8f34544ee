// Package flashlayout computes flash addresses for the bootloader and user
// slots. It is a direct Go rendering of the bootloader's own SlotLayout
// addressing scheme, so that the host tool and the device agree on where
// every region lives without either side parsing the other's source.
package flashlayout

import (
	"github.com/apfaudio/tiliqua-sub000/pkg/layout"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

// SlotLayout describes the flash addressing of either the bootloader or one
// user slot. The zero value is not meaningful; construct one with
// ForBootloader or ForSlot.
type SlotLayout struct {
	slotNumber   int
	isBootloader bool
}

// ForBootloader returns the layout describing the bootloader's own region.
func ForBootloader() SlotLayout {
	return SlotLayout{isBootloader: true}
}

// ForSlot returns the layout describing user slot n. n must satisfy
// 0 <= n < layout.NManifests; callers that accept slot numbers from user
// input should validate with SlotInRange first.
func ForSlot(n int) SlotLayout {
	return SlotLayout{slotNumber: n}
}

// IsBootloader reports whether l describes the bootloader's own region.
func (l SlotLayout) IsBootloader() bool {
	return l.isBootloader
}

// SlotInRange reports whether n is a valid user slot number.
func SlotInRange(n int) bool {
	return n >= 0 && n < layout.NManifests
}

// BitstreamAddr returns the flash address of this slot's bitstream region.
func (l SlotLayout) BitstreamAddr() int {
	if l.isBootloader {
		return layout.BootloaderBitstreamAddr
	}
	return layout.SlotBitstreamBase + l.slotNumber*layout.SlotSize
}

// ManifestAddr returns the flash address of this slot's manifest region.
func (l SlotLayout) ManifestAddr() int {
	if l.isBootloader {
		return layout.SlotBitstreamBase - layout.ManifestSize
	}
	return l.BitstreamAddr() + layout.SlotSize - layout.ManifestSize
}

// FirmwareBase returns the flash address of this slot's firmware base, where
// the resolver places the slot's RamLoad firmware images.
// The bootloader has no firmware base of its own (it runs XIP from its own
// fixed image); callers must check IsBootloader first.
func (l SlotLayout) FirmwareBase() (int, error) {
	if l.isBootloader {
		return 0, tqerr.New(tqerr.KindBootloaderHasNoFirmwareBase,
			"bootloader has no firmware base; it executes XIP from its own fixed image")
	}
	return layout.FirmwareBaseSlot0 + l.slotNumber*layout.SlotSize, nil
}

// OptionsBase returns the flash address of this slot's option-storage
// region.
func (l SlotLayout) OptionsBase() int {
	if l.isBootloader {
		return layout.OptionsBaseAddr
	}
	return layout.OptionsBaseAddr + (1+l.slotNumber)*layout.SlotSize
}

// SlotStartAddr returns the start address of user slot n.
func SlotStartAddr(n int) int {
	return layout.SlotBitstreamBase + n*layout.SlotSize
}

// SlotEndAddr returns the (exclusive) end address of user slot n.
func SlotEndAddr(n int) int {
	return SlotStartAddr(n) + layout.SlotSize
}

// SlotFromAddr returns the user slot number that addr falls within. It does
// not validate that addr actually falls in the user-slot region; callers
// working from untrusted input should check the result with SlotInRange.
func SlotFromAddr(addr int) int {
	return (addr - layout.SlotBitstreamBase) / layout.SlotSize
}

// CheckSlotBounds returns a SlotOutOfRange-kind error if n is not a valid
// user slot number.
func CheckSlotBounds(n int) error {
	if !SlotInRange(n) {
		return tqerr.Newf(tqerr.KindSlotOutOfRange,
			"slot %d is out of range: must be 0 <= slot < %d", n, layout.NManifests)
	}
	return nil
}
