package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/apfaudio/tiliqua-sub000/pkg/manifest"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

// Loader extracts a bitstream archive into a scratch directory and exposes
// its manifest and member paths. Callers must call Close once done, which
// removes the scratch directory regardless of how the loader was used.
type Loader struct {
	archivePath string
	scratchDir  string
	manifest    *manifest.BitstreamManifest
}

// Open extracts archivePath into a fresh scratch directory and parses its
// manifest. On any error, the scratch directory (if created) is removed
// before returning, so callers never need to clean up after a failed Open.
func Open(archivePath string) (loader *Loader, err error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, tqerr.Wrap(tqerr.KindArchiveNotFound, err,
			"cannot open archive %s: %s", archivePath, err.Error())
	}
	defer f.Close()

	scratchDir, err := os.MkdirTemp("", "tiliqua-flash-*")
	if err != nil {
		return nil, tqerr.Wrap(tqerr.KindArchiveCorrupt, err,
			"cannot create scratch directory: %s", err.Error())
	}
	defer func() {
		if err != nil {
			os.RemoveAll(scratchDir)
		}
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, tqerr.Wrap(tqerr.KindArchiveCorrupt, err,
			"%s is not a valid gzip archive: %s", archivePath, err.Error())
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, terr := tr.Next()
		if terr == io.EOF {
			break
		}
		if terr != nil {
			return nil, tqerr.Wrap(tqerr.KindArchiveCorrupt, terr,
				"malformed archive %s: %s", archivePath, terr.Error())
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		dest := filepath.Join(scratchDir, filepath.Base(hdr.Name))
		out, oerr := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if oerr != nil {
			return nil, tqerr.Wrap(tqerr.KindArchiveCorrupt, oerr,
				"cannot extract %s: %s", hdr.Name, oerr.Error())
		}
		_, cerr := io.Copy(out, tr)
		out.Close()
		if cerr != nil {
			return nil, tqerr.Wrap(tqerr.KindArchiveCorrupt, cerr,
				"cannot extract %s: %s", hdr.Name, cerr.Error())
		}
	}

	m, merr := manifest.ReadFromPath(filepath.Join(scratchDir, ManifestFilename))
	if merr != nil {
		return nil, tqerr.Wrap(tqerr.KindManifestMissing, merr,
			"archive %s has no usable manifest: %s", archivePath, merr.Error())
	}

	return &Loader{
		archivePath: archivePath,
		scratchDir:  scratchDir,
		manifest:    m,
	}, nil
}

// Close removes the loader's scratch directory.
func (l *Loader) Close() error {
	return os.RemoveAll(l.scratchDir)
}

// Manifest returns the archive's parsed manifest.
func (l *Loader) Manifest() *manifest.BitstreamManifest {
	return l.manifest
}

// ScratchDir returns the directory the archive was extracted into.
func (l *Loader) ScratchDir() string {
	return l.scratchDir
}

// MemberPath returns the scratch-directory path of an extracted archive
// member, such as BitstreamFilename or FirmwareFilename.
func (l *Loader) MemberPath(name string) string {
	return filepath.Join(l.scratchDir, name)
}

// HasMember reports whether name was present in the archive.
func (l *Loader) HasMember(name string) bool {
	_, err := os.Stat(l.MemberPath(name))
	return err == nil
}

// IsBootloaderArchive reports whether the archive describes a bootloader
// image: true iff any region has role XipFirmware. Only the bootloader
// itself carries an XIP firmware region placed by the archive builder
// rather than by the resolver; user bitstreams add RamLoad firmware
// instead.
func (l *Loader) IsBootloaderArchive() bool {
	for _, r := range l.manifest.Regions {
		if r.RegionType == manifest.RoleXipFirmware {
			return true
		}
	}
	return false
}
