// Package resolve implements the region resolver: the algorithm that turns
// an archive's abstract manifest into concrete, page-aligned, non-
// overlapping, slot-bounded flash addresses.
package resolve

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/apfaudio/tiliqua-sub000/pkg/flashlayout"
	"github.com/apfaudio/tiliqua-sub000/pkg/layout"
	"github.com/apfaudio/tiliqua-sub000/pkg/manifest"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

// FlashableRegion is the resolved form of a manifest.MemoryRegion: it
// carries an absolute flash address and a page-aligned size, ready to drive
// a programmer invocation.
type FlashableRegion struct {
	Region      manifest.MemoryRegion
	Addr        int
	AlignedSize int
	SourcePath  string
}

// Target identifies where an archive's regions are being resolved to:
// either the bootloader's fixed region, or a specific user slot.
type Target struct {
	Bootloader bool
	Slot       int
}

// ForBootloader returns a Target describing the bootloader.
func ForBootloader() Target {
	return Target{Bootloader: true}
}

// ForSlot returns a Target describing user slot n.
func ForSlot(n int) Target {
	return Target{Slot: n}
}

func (t Target) layout() flashlayout.SlotLayout {
	if t.Bootloader {
		return flashlayout.ForBootloader()
	}
	return flashlayout.ForSlot(t.Slot)
}

// Result is the output of a successful Resolve: the revised manifest
// (addresses now concrete) plus the ordered FlashableRegion list.
type Result struct {
	Manifest *manifest.BitstreamManifest
	Regions  []FlashableRegion
}

// isBootloaderArchive reports whether m describes a bootloader image: true
// iff any region has role XipFirmware, matching archive.Loader's predicate
// of the same name.
func isBootloaderArchive(m *manifest.BitstreamManifest) bool {
	for _, r := range m.Regions {
		if r.RegionType == manifest.RoleXipFirmware {
			return true
		}
	}
	return false
}

// Resolve runs the region resolver against a manifest loaded from
// scratchDir, producing concrete addresses for the given target and
// verifying the device's reported hardware revision matches.
func Resolve(m *manifest.BitstreamManifest, scratchDir string, target Target, deviceHwRev int) (*Result, error) {
	isBoot := isBootloaderArchive(m)

	if isBoot && !target.Bootloader {
		return nil, tqerr.New(tqerr.KindSlotMisuse,
			"bootloader must be flashed to the bootloader slot")
	}
	if !isBoot && target.Bootloader {
		return nil, tqerr.New(tqerr.KindSlotMisuse,
			"must specify a slot for user bitstreams")
	}
	if !target.Bootloader {
		if err := flashlayout.CheckSlotBounds(target.Slot); err != nil {
			return nil, err
		}
	}
	if m.HwRev != deviceHwRev {
		return nil, tqerr.Newf(tqerr.KindHardwareMismatch,
			"manifest targets hw_rev=%d, device reports hw_rev=%d", m.HwRev, deviceHwRev)
	}

	sl := target.layout()

	revised := *m
	revised.Regions = make([]manifest.MemoryRegion, len(m.Regions))
	copy(revised.Regions, m.Regions)

	firmwareCursor := 0
	if !target.Bootloader {
		fw, err := sl.FirmwareBase()
		if err != nil {
			return nil, err
		}
		firmwareCursor = fw
	}

	for i := range revised.Regions {
		r := &revised.Regions[i]

		switch r.RegionType {
		case manifest.RoleBitstream:
			addr := sl.BitstreamAddr()
			r.SpiflashSrc = &addr

		case manifest.RoleManifest:
			addr := sl.ManifestAddr()
			r.SpiflashSrc = &addr

		case manifest.RoleXipFirmware:
			// spiflash_src was already set by the archive builder; left as-is.

		case manifest.RoleRamLoad:
			addr := firmwareCursor
			r.SpiflashSrc = &addr
			firmwareCursor = layout.RoundUpPage(firmwareCursor + r.Size)

		case manifest.RoleOptionStorage:
			addr := sl.OptionsBase()
			r.SpiflashSrc = &addr

		default:
			return nil, tqerr.Newf(tqerr.KindManifestParseError,
				"unrecognized region type %q for %s", r.RegionType, r.Filename)
		}
	}

	if err := revised.SizeCheck(); err != nil {
		return nil, err
	}

	regions := make([]FlashableRegion, 0, len(revised.Regions))
	for _, r := range revised.Regions {
		if r.SpiflashSrc == nil {
			return nil, tqerr.Newf(tqerr.KindManifestParseError,
				"region %s has no resolved flash address", r.Filename)
		}
		regions = append(regions, FlashableRegion{
			Region:      r,
			Addr:        *r.SpiflashSrc,
			AlignedSize: layout.RoundUpPage(r.Size),
			SourcePath:  filepath.Join(scratchDir, r.Filename),
		})
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Addr < regions[j].Addr
	})

	if err := checkOverlap(regions); err != nil {
		return nil, err
	}

	if !target.Bootloader {
		if err := checkBounds(regions, target.Slot); err != nil {
			return nil, err
		}
	}

	return &Result{Manifest: &revised, Regions: regions}, nil
}

// checkOverlap verifies that no two adjacent (by address) regions overlap.
// Regions must already be sorted by Addr.
func checkOverlap(regions []FlashableRegion) error {
	for i := 0; i < len(regions)-1; i++ {
		a := regions[i]
		b := regions[i+1]
		if a.Addr+a.AlignedSize > b.Addr {
			return tqerr.Newf(tqerr.KindRegionOverlap,
				"region %s [0x%X, 0x%X) overlaps %s at 0x%X",
				a.Region.Filename, a.Addr, a.Addr+a.AlignedSize, b.Region.Filename, b.Addr)
		}
	}
	return nil
}

// checkBounds verifies every region lies entirely within the given user
// slot's address range.
func checkBounds(regions []FlashableRegion, slot int) error {
	start := flashlayout.SlotStartAddr(slot)
	end := flashlayout.SlotEndAddr(slot)

	for _, r := range regions {
		if r.Addr < start || r.Addr+r.AlignedSize > end {
			return tqerr.Newf(tqerr.KindSlotOverrun,
				"region %s [0x%X, 0x%X) does not fit within slot %d [0x%X, 0x%X)",
				r.Region.Filename, r.Addr, r.Addr+r.AlignedSize, slot, start, end)
		}
	}
	return nil
}

// WriteRevisedManifest serializes and writes the resolved manifest back to
// the scratch directory's manifest.json, so the flashed manifest reflects
// concrete addresses.
func WriteRevisedManifest(result *Result, scratchDir string) error {
	path := filepath.Join(scratchDir, "manifest.json")
	return result.Manifest.WriteToPath(path)
}

// String renders a human-readable, ascending-address plan summary for
// pre-flash confirmation prompts.
func (r *Result) String() string {
	s := ""
	for _, region := range r.Regions {
		s += fmt.Sprintf("  0x%06X  %-12s %-8s %6d bytes\n",
			region.Addr, region.Region.Filename, region.Region.RegionType, region.Region.Size)
	}
	return s
}
