// Package tqerr defines the kind-tagged error type used throughout the
// Tiliqua flash toolchain.
//
// It follows the wrapping idiom of the teacher's util.NewtError
// (NewNewtError/ChildNewtError/FmtNewtError), but adds a Kind discriminant
// so callers can branch on error category instead of matching message text,
// since the error taxonomy this toolchain implements is itself already
// kind-based (archive deployment spec, error handling design).
package tqerr

import "fmt"

// Kind discriminates the error taxonomy this toolchain can produce.
type Kind int

const (
	// KindUnknown is the zero value; never returned intentionally.
	KindUnknown Kind = iota

	// Input errors.
	KindArchiveNotFound
	KindSlotOutOfRange
	KindSlotMisuse

	// Compatibility errors.
	KindHardwareMismatch

	// Layout errors.
	KindRegionOverlap
	KindSlotOverrun
	KindManifestTooLarge
	KindBootloaderHasNoFirmwareBase

	// Content errors.
	KindArchiveCorrupt
	KindManifestMissing
	KindManifestParseError
	KindBitstreamMissing

	// External tool errors.
	KindProgrammerNotFound
	KindProgrammerExitNonZero
	KindNoDeviceFound
	KindMalformedProductString

	// User actions.
	KindConfirmationDeclined
)

func (k Kind) String() string {
	switch k {
	case KindArchiveNotFound:
		return "ArchiveNotFound"
	case KindSlotOutOfRange:
		return "SlotOutOfRange"
	case KindSlotMisuse:
		return "SlotMisuse"
	case KindHardwareMismatch:
		return "HardwareMismatch"
	case KindRegionOverlap:
		return "RegionOverlap"
	case KindSlotOverrun:
		return "SlotOverrun"
	case KindManifestTooLarge:
		return "ManifestTooLarge"
	case KindBootloaderHasNoFirmwareBase:
		return "BootloaderHasNoFirmwareBase"
	case KindArchiveCorrupt:
		return "ArchiveCorrupt"
	case KindManifestMissing:
		return "ManifestMissing"
	case KindManifestParseError:
		return "ManifestParseError"
	case KindBitstreamMissing:
		return "BitstreamMissing"
	case KindProgrammerNotFound:
		return "ProgrammerNotFound"
	case KindProgrammerExitNonZero:
		return "ProgrammerExitNonZero"
	case KindNoDeviceFound:
		return "NoDeviceFound"
	case KindMalformedProductString:
		return "MalformedProductString"
	case KindConfirmationDeclined:
		return "ConfirmationDeclined"
	default:
		return "Unknown"
	}
}

// Error is the toolchain's error type: a kind, a human-readable message, and
// an optional wrapped cause.
type Error struct {
	Kind   Kind
	Text   string
	Parent error
}

func (e *Error) Error() string {
	return e.Text
}

func (e *Error) Unwrap() error {
	return e.Parent
}

// New builds an Error of the given kind with a literal message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Text: msg}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Text: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a parent error, similarly to
// util.ChildNewtError/FmtChildNewtError in the teacher.
func Wrap(kind Kind, parent error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Text:   fmt.Sprintf(format, args...),
		Parent: parent,
	}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it returns KindUnknown.
func KindOf(err error) Kind {
	for err != nil {
		if te, ok := err.(*Error); ok {
			return te.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindUnknown
}

// ExitCode maps an error kind to the process exit code the CLI should use.
// The boundary between "safe" (refused before any write) and "unsafe"
// (failure during flashing, device may be partially programmed) matters
// operationally: everything except KindProgrammerExitNonZero is detected
// before any destructive action is taken.
func ExitCode(kind Kind) int {
	switch kind {
	case KindConfirmationDeclined:
		return 0
	case KindArchiveNotFound, KindSlotOutOfRange, KindSlotMisuse:
		return 2
	case KindHardwareMismatch:
		return 3
	case KindRegionOverlap, KindSlotOverrun, KindManifestTooLarge,
		KindBootloaderHasNoFirmwareBase:
		return 4
	case KindArchiveCorrupt, KindManifestMissing, KindManifestParseError,
		KindBitstreamMissing:
		return 5
	case KindProgrammerNotFound, KindNoDeviceFound, KindMalformedProductString:
		return 6
	case KindProgrammerExitNonZero:
		return 7
	default:
		return 1
	}
}
