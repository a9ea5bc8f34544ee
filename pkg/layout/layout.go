// Package layout holds the flash-address constants shared between this
// toolchain and the Tiliqua bootloader firmware.
//
// This is the single canonical source for these values: they must be
// defined in exactly one place and consumed by every package below that
// needs them (manifest, flashlayout, archive, resolve, programmer).
// Grepping another language's source for these constants at build time is
// deliberately not done here; the on-device firmware is expected to derive
// its own copy from the same numbers, generated from a shared data file if
// cross-language sharing is ever needed.
package layout

const (
	// ManifestMagic is the fixed sentinel value carried in every on-flash
	// manifest's "magic" field, allowing the bootloader to quickly validate
	// a slot.
	ManifestMagic uint32 = 0x54494C51 // "TILQ"

	// ManifestSize is the fixed size in bytes of the flash window reserved
	// for a manifest document in every slot.
	ManifestSize = 0x1000

	// NManifests is the number of user slots the bootloader manages.
	NManifests = 8

	// SlotBitstreamBase is the flash offset of user slot 0's bitstream.
	SlotBitstreamBase = 0x100000

	// SlotSize is the size in bytes of each user slot.
	SlotSize = 0x100000

	// FlashPageSz is the page-alignment granularity of the SPI flash.
	FlashPageSz = 0x1000

	// FirmwareBaseSlot0 is the flash offset of user slot 0's firmware base.
	FirmwareBaseSlot0 = 0x1B0000

	// OptionsBaseAddr is the flash offset of the bootloader's option
	// storage region; user slot option storage is offset from here.
	OptionsBaseAddr = 0xFD000

	// BootloaderBitstreamAddr is the fixed flash offset of the bootloader's
	// own bitstream.
	BootloaderBitstreamAddr = 0x000000
)

// RoundUpPage rounds size up to the next multiple of FlashPageSz.
func RoundUpPage(size int) int {
	return RoundUp(size, FlashPageSz)
}

// RoundUp rounds size up to the next multiple of align. align must be > 0.
func RoundUp(size int, align int) int {
	if size%align == 0 {
		return size
	}
	return (size/align + 1) * align
}
