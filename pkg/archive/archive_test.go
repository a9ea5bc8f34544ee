package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apfaudio/tiliqua-sub000/pkg/manifest"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writeFile(%s): %v", path, err)
	}
}

func TestBuilderCreateAndOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, BitstreamFilename), []byte("fake bitstream contents"))

	b := NewBuilder(dir, "xbeam", "deadbeef", 4)
	b.WithBitstream().WithOptionStorage(0)

	ok, err := b.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !ok {
		t.Fatalf("expected Create to report success")
	}

	loader, err := Open(b.ArchivePath())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer loader.Close()

	m := loader.Manifest()
	if m.Name != "xbeam" {
		t.Errorf("Name = %q, want xbeam", m.Name)
	}
	if m.HwRev != 4 {
		t.Errorf("HwRev = %d, want 4", m.HwRev)
	}
	if !loader.HasMember(BitstreamFilename) {
		t.Errorf("expected bitstream member to be extracted")
	}

	if _, err := os.Stat(loader.ScratchDir()); err != nil {
		t.Fatalf("scratch dir missing while loader open: %v", err)
	}
	scratch := loader.ScratchDir()
	if err := loader.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir removed after Close")
	}
}

func TestCreateArchiveWithoutBitstreamIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir, "xbeam", "deadbeef", 4)

	ok, err := b.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok {
		t.Fatalf("expected Create to report no archive written")
	}
}

func TestOpenRejectsMissingArchive(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.tar.gz"))
	if err == nil {
		t.Fatalf("expected error opening missing archive")
	}
}

func TestOpenCleansUpScratchDirOnBadArchive(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "bad.tar.gz")
	writeFile(t, badPath, []byte("not a gzip file"))

	before, _ := filepath.Glob(filepath.Join(os.TempDir(), "tiliqua-flash-*"))

	_, err := Open(badPath)
	if err == nil {
		t.Fatalf("expected error opening malformed archive")
	}

	after, _ := filepath.Glob(filepath.Join(os.TempDir(), "tiliqua-flash-*"))
	if len(after) > len(before) {
		t.Errorf("expected no leaked scratch directories, before=%d after=%d", len(before), len(after))
	}
}

func TestValidateExistingBitstreamDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, BitstreamFilename), []byte("fake bitstream"))

	b := NewBuilder(dir, "xbeam", "deadbeef", 4)
	b.WithBitstream()
	if _, err := b.WriteManifest(); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	other := NewBuilder(dir, "polyend", "deadbeef", 4)
	if err := other.ValidateExistingBitstream(); err == nil {
		t.Fatalf("expected mismatch error for different project name")
	}

	same := NewBuilder(dir, "xbeam", "deadbeef", 4)
	if err := same.ValidateExistingBitstream(); err != nil {
		t.Fatalf("expected matching project/hw_rev to validate: %v", err)
	}
}

func TestWithManifestIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir, "xbeam", "deadbeef", 4)
	b.WithManifest().WithManifest()

	count := 0
	for _, r := range b.regions {
		if r.RegionType == manifest.RoleManifest {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one manifest region, got %d", count)
	}
}
