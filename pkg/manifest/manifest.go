// Package manifest defines the on-flash bitstream manifest document: the
// JSON sidecar that describes a bitstream's memory regions and startup
// requirements to the bootloader.
package manifest

import (
	"encoding/json"
	"io"
	"os"

	"github.com/apfaudio/tiliqua-sub000/pkg/layout"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

// RegionRole identifies how the bootloader should treat a memory region. It
// is a named string, not an iota-enum, because it is also the exact value
// written to and read from the manifest's JSON wire format.
type RegionRole string

const (
	// RoleBitstream marks a region loaded directly by the bootloader.
	RoleBitstream RegionRole = "Bitstream"
	// RoleXipFirmware marks firmware executed directly from SPI flash.
	RoleXipFirmware RegionRole = "XipFirmware"
	// RoleRamLoad marks a region copied from flash to RAM before use.
	RoleRamLoad RegionRole = "RamLoad"
	// RoleOptionStorage marks persistent application settings storage.
	RoleOptionStorage RegionRole = "OptionStorage"
	// RoleManifest marks the manifest document's own region.
	RoleManifest RegionRole = "Manifest"
)

// MemoryRegion describes one flash or RAM region belonging to a bitstream.
type MemoryRegion struct {
	Filename    string     `json:"filename"`
	Size        int        `json:"size"`
	RegionType  RegionRole `json:"region_type"`
	SpiflashSrc *int       `json:"spiflash_src,omitempty"`
	PsramDst    *int       `json:"psram_dst,omitempty"`
	Crc         *uint32    `json:"crc,omitempty"`
}

// ExternalPLLConfig describes an optional external clock generator setup
// that must be applied before a bitstream is started.
type ExternalPLLConfig struct {
	Clk0Hz         int      `json:"clk0_hz"`
	Clk1Inherit    bool     `json:"clk1_inherit"`
	Clk1Hz         *int     `json:"clk1_hz,omitempty"`
	SpreadSpectrum *float64 `json:"spread_spectrum,omitempty"`
}

// BitstreamManifest is the top-level document written alongside every
// bitstream: one per flashable slot.
type BitstreamManifest struct {
	HwRev             int                `json:"hw_rev"`
	Name              string             `json:"name"`
	Sha               string             `json:"sha"`
	Brief             string             `json:"brief"`
	Video             string             `json:"video"`
	Regions           []MemoryRegion     `json:"regions"`
	ExternalPLLConfig *ExternalPLLConfig `json:"external_pll_config,omitempty"`
	Magic             uint32             `json:"magic"`
}

// New returns a BitstreamManifest with Magic pre-filled to the canonical
// sentinel; callers still need to fill in the rest.
func New() *BitstreamManifest {
	return &BitstreamManifest{
		Magic: layout.ManifestMagic,
	}
}

// cleandict recursively strips nil/absent values from a decoded JSON tree,
// matching the Python original's write_to_path cleandict() helper: a
// manifest written by an older or newer tool should still decode cleanly as
// long as it's missing only optional keys.
func cleandict(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			if vv == nil {
				continue
			}
			out[k] = cleandict(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = cleandict(vv)
		}
		return out
	default:
		return v
	}
}

// Serialize renders m as compact None-elided JSON: fields are first
// marshaled normally (honoring `omitempty` for the Go-side optional
// pointers), then round-tripped through a generic map so that any nested
// nil left over is also dropped, matching the recursive cleandict() used
// by the manifest's original author.
func (m *BitstreamManifest) Serialize() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, tqerr.Wrap(tqerr.KindManifestParseError, err,
			"cannot encode manifest: %s", err.Error())
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, tqerr.Wrap(tqerr.KindManifestParseError, err,
			"cannot re-decode manifest for cleanup: %s", err.Error())
	}

	cleaned, err := json.Marshal(cleandict(generic))
	if err != nil {
		return nil, tqerr.Wrap(tqerr.KindManifestParseError, err,
			"cannot encode cleaned manifest: %s", err.Error())
	}

	return cleaned, nil
}

// WriteToPath serializes m and writes it to path.
func (m *BitstreamManifest) WriteToPath(path string) error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return tqerr.Wrap(tqerr.KindManifestParseError, err,
			"cannot write manifest to %s: %s", path, err.Error())
	}
	return nil
}

// Write serializes m and writes it to w.
func (m *BitstreamManifest) Write(w io.Writer) (int, error) {
	data, err := m.Serialize()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return n, tqerr.Wrap(tqerr.KindManifestParseError, err,
			"cannot write manifest: %s", err.Error())
	}
	return n, nil
}

// Deserialize parses a manifest document and validates its magic.
func Deserialize(data []byte) (*BitstreamManifest, error) {
	m := &BitstreamManifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, tqerr.Wrap(tqerr.KindManifestParseError, err,
			"failed decoding manifest: %s", err.Error())
	}
	if m.Magic != layout.ManifestMagic {
		return nil, tqerr.Newf(tqerr.KindManifestParseError,
			"bad manifest magic: got 0x%08X, want 0x%08X", m.Magic, layout.ManifestMagic)
	}
	return m, nil
}

// ReadFromPath reads and parses a manifest document from path.
func ReadFromPath(path string) (*BitstreamManifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, tqerr.Wrap(tqerr.KindManifestMissing, err,
			"cannot read manifest %s: %s", path, err.Error())
	}
	return Deserialize(content)
}

// SizeCheck returns a ManifestTooLarge-kind error if the serialized manifest
// would not fit inside the fixed manifest_size flash window.
func (m *BitstreamManifest) SizeCheck() error {
	data, err := m.Serialize()
	if err != nil {
		return err
	}
	if len(data) > layout.ManifestSize {
		return tqerr.Newf(tqerr.KindManifestTooLarge,
			"manifest is %d bytes, exceeds fixed window of %d bytes",
			len(data), layout.ManifestSize)
	}
	return nil
}
