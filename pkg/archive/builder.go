// Package archive builds and opens bitstream archives: tar.gz files
// bundling a bitstream, its manifest, and optional firmware/option-storage
// resources into one shareable artifact.
package archive

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/apfaudio/tiliqua-sub000/internal/bzipcrc"
	"github.com/apfaudio/tiliqua-sub000/internal/tqlog"
	"github.com/apfaudio/tiliqua-sub000/pkg/layout"
	"github.com/apfaudio/tiliqua-sub000/pkg/manifest"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

// BitstreamFilename is the archive member name of the bitstream image.
const BitstreamFilename = "top.bit"

// ManifestFilename is the archive member name of the manifest document.
const ManifestFilename = "manifest.json"

// FirmwareFilename is the archive member name of a firmware image (XIP or
// RAM-loaded), when present.
const FirmwareFilename = "firmware.bin"

// Builder assembles a bitstream archive from a build directory, chaining
// With* calls that each register one memory region, terminated by Create.
type Builder struct {
	buildPath string
	name      string
	sha       string
	hwRev     int

	externalPLL *manifest.ExternalPLLConfig

	regions         []manifest.MemoryRegion
	firmwareBinPath string
	err             error
}

// NewBuilder starts a Builder for a project's build output directory. name
// and sha identify the bitstream; hwRev is the hardware revision it targets.
func NewBuilder(buildPath, name, sha string, hwRev int) *Builder {
	return &Builder{
		buildPath: buildPath,
		name:      name,
		sha:       sha,
		hwRev:     hwRev,
	}
}

// WithExternalPLLConfig attaches an external clock configuration to the
// eventual manifest.
func (b *Builder) WithExternalPLLConfig(cfg *manifest.ExternalPLLConfig) *Builder {
	b.externalPLL = cfg
	return b
}

func (b *Builder) bitstreamPath() string {
	return filepath.Join(b.buildPath, BitstreamFilename)
}

func (b *Builder) manifestPath() string {
	return filepath.Join(b.buildPath, ManifestFilename)
}

// ArchiveName returns the canonical filename for the produced archive.
func (b *Builder) ArchiveName() string {
	return fmt.Sprintf("%s-%s-%d.tar.gz", strings.ToLower(b.name), b.sha, b.hwRev)
}

// ArchivePath returns the full path the produced archive will be written to.
func (b *Builder) ArchivePath() string {
	return filepath.Join(b.buildPath, b.ArchiveName())
}

// BitstreamExists reports whether a bitstream has already been built at the
// expected location.
func (b *Builder) BitstreamExists() bool {
	_, err := os.Stat(b.bitstreamPath())
	return err == nil
}

// WithBitstream registers the project's bitstream as a region, computing its
// CRC32/BZIP2 checksum. If the bitstream hasn't been built yet, it logs a
// warning and leaves the builder otherwise unchanged, matching the original
// tool's tolerant behavior (archive creation is refused later, in Create).
func (b *Builder) WithBitstream() *Builder {
	if b.err != nil {
		return b
	}
	if !b.BitstreamExists() {
		tqlog.StatusMessage(tqlog.VerbosityDefault,
			"WARNING: bitstream file not found at %s\n", b.bitstreamPath())
		return b
	}

	data, err := os.ReadFile(b.bitstreamPath())
	if err != nil {
		b.err = tqerr.Wrap(tqerr.KindBitstreamMissing, err, "cannot read bitstream: %s", err.Error())
		return b
	}

	crc := bzipcrc.Checksum(data)
	region := manifest.MemoryRegion{
		Filename:   BitstreamFilename,
		RegionType: manifest.RoleBitstream,
		Size:       len(data),
		Crc:        &crc,
	}

	// Bitstream region is conventionally first.
	b.regions = append([]manifest.MemoryRegion{region}, b.regions...)
	return b
}

// FirmwareLocation describes where a firmware image executes from.
type FirmwareLocation int

const (
	// FirmwareBRAM is baked into the bitstream; it needs no archive region.
	FirmwareBRAM FirmwareLocation = iota
	// FirmwareSPIFlash executes directly from SPI flash (XIP).
	FirmwareSPIFlash
	// FirmwarePSRAM is copied from flash to PSRAM before it runs.
	FirmwarePSRAM
)

// WithFirmware registers a firmware binary as a region. fwOffset is
// interpreted as a SPI flash offset for FirmwareSPIFlash, or a PSRAM
// destination for FirmwarePSRAM; it is ignored for FirmwareBRAM.
func (b *Builder) WithFirmware(firmwareBinPath string, loc FirmwareLocation, fwOffset int) *Builder {
	if b.err != nil {
		return b
	}
	if loc == FirmwareBRAM {
		return b
	}

	b.firmwareBinPath = firmwareBinPath
	if _, err := os.Stat(firmwareBinPath); err != nil {
		tqlog.StatusMessage(tqlog.VerbosityDefault,
			"WARNING: firmware file not found at %s\n", firmwareBinPath)
		return b
	}

	data, err := os.ReadFile(firmwareBinPath)
	if err != nil {
		b.err = tqerr.Wrap(tqerr.KindBitstreamMissing, err, "cannot read firmware: %s", err.Error())
		return b
	}
	crc := bzipcrc.Checksum(data)

	region := manifest.MemoryRegion{
		Filename: FirmwareFilename,
		Size:     len(data),
		Crc:      &crc,
	}

	switch loc {
	case FirmwareSPIFlash:
		region.RegionType = manifest.RoleXipFirmware
		off := fwOffset
		region.SpiflashSrc = &off
	case FirmwarePSRAM:
		region.RegionType = manifest.RoleRamLoad
		off := fwOffset
		region.PsramDst = &off
	}

	b.regions = append(b.regions, region)
	return b
}

// WithOptionStorage registers an option-storage region of the given size
// (default two flash pages if size is 0).
func (b *Builder) WithOptionStorage(size int) *Builder {
	if b.err != nil {
		return b
	}
	if size == 0 {
		size = 2 * layout.FlashPageSz
	}
	b.regions = append(b.regions, manifest.MemoryRegion{
		Filename:   "<options>",
		RegionType: manifest.RoleOptionStorage,
		Size:       size,
	})
	return b
}

// WithManifest registers the manifest's own region. Create calls this
// automatically if it hasn't been called already.
func (b *Builder) WithManifest() *Builder {
	if b.err != nil {
		return b
	}
	for _, r := range b.regions {
		if r.RegionType == manifest.RoleManifest {
			return b
		}
	}
	b.regions = append(b.regions, manifest.MemoryRegion{
		Filename:   ManifestFilename,
		Size:       layout.ManifestSize,
		RegionType: manifest.RoleManifest,
	})
	return b
}

// WriteManifest finalizes and writes the manifest document to the build
// directory, returning it for inspection.
func (b *Builder) WriteManifest() (*manifest.BitstreamManifest, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.WithManifest()

	m := manifest.New()
	m.Name = b.name
	m.HwRev = b.hwRev
	m.Sha = b.sha
	m.Regions = b.regions
	m.ExternalPLLConfig = b.externalPLL

	if err := m.WriteToPath(b.manifestPath()); err != nil {
		return nil, err
	}
	return m, nil
}

// Create writes the manifest and then the archive in one step, mirroring
// the original tool's one-shot entry point.
func (b *Builder) Create() (bool, error) {
	if _, err := b.WriteManifest(); err != nil {
		return false, err
	}
	return b.CreateArchive()
}

// CreateArchive packages the bitstream, manifest, and optional firmware into
// a tar.gz file at ArchivePath. It returns false (not an error) if no
// bitstream has been built yet, matching the original tool's tolerant
// "nothing to archive" outcome for incomplete builds.
func (b *Builder) CreateArchive() (bool, error) {
	if b.err != nil {
		return false, b.err
	}
	if !b.BitstreamExists() {
		tqlog.StatusMessage(tqlog.VerbosityDefault,
			"WARNING: skipping archive creation, bitstream has not been built\n")
		return false, nil
	}

	tqlog.StatusMessage(tqlog.VerbosityDefault,
		"Creating bitstream archive %s...\n", b.ArchiveName())

	out, err := os.Create(b.ArchivePath())
	if err != nil {
		return false, tqerr.Wrap(tqerr.KindArchiveCorrupt, err, "cannot create archive: %s", err.Error())
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	if err := addFile(tw, b.bitstreamPath(), BitstreamFilename); err != nil {
		return false, err
	}
	if err := addFile(tw, b.manifestPath(), ManifestFilename); err != nil {
		return false, err
	}
	if b.firmwareBinPath != "" {
		if _, err := os.Stat(b.firmwareBinPath); err == nil {
			if err := addFile(tw, b.firmwareBinPath, FirmwareFilename); err != nil {
				return false, err
			}
		}
	}

	tqlog.StatusMessage(tqlog.VerbosityDefault, "\nSaved to %s\n", b.ArchivePath())
	return true, nil
}

func addFile(tw *tar.Writer, path, arcname string) error {
	info, err := os.Stat(path)
	if err != nil {
		return tqerr.Wrap(tqerr.KindArchiveCorrupt, err, "cannot stat %s: %s", path, err.Error())
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return tqerr.Wrap(tqerr.KindArchiveCorrupt, err, "cannot build tar header for %s: %s", path, err.Error())
	}
	hdr.Name = arcname

	if err := tw.WriteHeader(hdr); err != nil {
		return tqerr.Wrap(tqerr.KindArchiveCorrupt, err, "cannot write tar header for %s: %s", arcname, err.Error())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tqerr.Wrap(tqerr.KindArchiveCorrupt, err, "cannot read %s: %s", path, err.Error())
	}
	if _, err := tw.Write(data); err != nil {
		return tqerr.Wrap(tqerr.KindArchiveCorrupt, err, "cannot write %s into archive: %s", arcname, err.Error())
	}
	return nil
}

// Summary renders a human-readable description of the archive's contents,
// as printed by the original tool after creation.
func (b *Builder) Summary() (string, error) {
	var sb strings.Builder

	sb.WriteString("Contents:\n")
	for _, r := range b.regions {
		fmt.Fprintf(&sb, "  %-12s %4d KiB\n", r.Filename, r.Size/1024)
	}

	info, err := os.Stat(b.ArchivePath())
	if err == nil {
		fmt.Fprintf(&sb, "\nCompressed bitstream archive size: %d KiB\n", info.Size()/1024)
	}

	m, err := manifest.ReadFromPath(b.manifestPath())
	if err == nil {
		data, _ := json.MarshalIndent(m, "", "  ")
		fmt.Fprintf(&sb, "\nManifest contents:\n%s\n", data)
	}

	return sb.String(), nil
}

// ValidateExistingBitstream checks that a previously built bitstream in
// buildPath still matches name/hwRev, for the --fw-only style rebuild path
// where only firmware changed but the bitstream is reused unmodified.
func (b *Builder) ValidateExistingBitstream() error {
	if !b.BitstreamExists() {
		return tqerr.Newf(tqerr.KindBitstreamMissing,
			"no existing bitstream found at %s; build the full project at least once first",
			b.bitstreamPath())
	}

	m, err := manifest.ReadFromPath(b.manifestPath())
	if err != nil {
		return tqerr.Wrap(tqerr.KindManifestMissing, err,
			"no usable manifest found at %s; build the full project at least once first",
			b.manifestPath())
	}

	if m.Name != b.name {
		return tqerr.Newf(tqerr.KindHardwareMismatch,
			"existing bitstream is for %q, but this build is for %q", m.Name, b.name)
	}
	if m.HwRev != b.hwRev {
		return tqerr.Newf(tqerr.KindHardwareMismatch,
			"existing bitstream is for hw_rev=%d, but this build is for hw_rev=%d", m.HwRev, b.hwRev)
	}

	return nil
}
