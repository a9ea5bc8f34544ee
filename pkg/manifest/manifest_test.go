package manifest

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/apfaudio/tiliqua-sub000/pkg/layout"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

func TestSerializeOmitsNilFields(t *testing.T) {
	m := New()
	m.HwRev = 4
	m.Name = "xbeam"
	m.Sha = "abc123"
	m.Regions = []MemoryRegion{
		{Filename: "top.bit", Size: 0x10000, RegionType: RoleBitstream},
	}

	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	for _, key := range []string{"spiflash_src", "psram_dst", "crc", "external_pll_config"} {
		if strings.Contains(string(data), key) {
			t.Errorf("serialized manifest unexpectedly contains %q: %s", key, data)
		}
	}
	if !strings.Contains(string(data), "\"magic\"") {
		t.Errorf("serialized manifest missing magic field: %s", data)
	}
}

func TestRoundTrip(t *testing.T) {
	src := 0x200000
	crc := uint32(0xDEADBEEF)

	want := New()
	want.HwRev = 4
	want.Name = "polyend"
	want.Sha = "deadbeef"
	want.Brief = "poly synth"
	want.Video = "720p60"
	want.Regions = []MemoryRegion{
		{Filename: "top.bit", Size: 0x20000, RegionType: RoleBitstream},
		{
			Filename:    "firmware.bin",
			Size:        0x8000,
			RegionType:  RoleRamLoad,
			SpiflashSrc: &src,
			Crc:         &crc,
		},
	}

	data, err := want.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDeserializeBadMagic(t *testing.T) {
	_, err := Deserialize([]byte(`{"magic":1,"hw_rev":4,"name":"x","sha":"","brief":"","video":"","regions":[]}`))
	if err == nil {
		t.Fatalf("expected error for bad magic")
	}
	if tqerr.KindOf(err) != tqerr.KindManifestParseError {
		t.Errorf("expected KindManifestParseError, got %v", tqerr.KindOf(err))
	}
}

func TestDeserializeGarbage(t *testing.T) {
	_, err := Deserialize([]byte("not json"))
	if err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestSizeCheck(t *testing.T) {
	m := New()
	m.HwRev = 4
	m.Name = "x"
	for i := 0; i < 1000; i++ {
		m.Regions = append(m.Regions, MemoryRegion{
			Filename:   "a-rather-long-filename-to-pad-out-the-manifest.bin",
			Size:       0x1000,
			RegionType: RoleBitstream,
		})
	}

	if err := m.SizeCheck(); err == nil {
		t.Fatalf("expected SizeCheck to fail for an oversized manifest")
	} else if tqerr.KindOf(err) != tqerr.KindManifestTooLarge {
		t.Errorf("expected KindManifestTooLarge, got %v", tqerr.KindOf(err))
	}
}

func TestSizeCheckFitsUnderLimit(t *testing.T) {
	m := New()
	m.HwRev = 4
	m.Name = "x"
	m.Regions = []MemoryRegion{{Filename: "top.bit", Size: 0x1000, RegionType: RoleBitstream}}

	if err := m.SizeCheck(); err != nil {
		t.Fatalf("expected small manifest to fit within %d bytes: %v", layout.ManifestSize, err)
	}
}
