package programmer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/apfaudio/tiliqua-sub000/internal/tqlog"
	"github.com/apfaudio/tiliqua-sub000/pkg/flashlayout"
	"github.com/apfaudio/tiliqua-sub000/pkg/layout"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

// SlotStatus classifies one slot's manifest region as read back from flash.
type SlotStatus struct {
	Slot    int
	Addr    int
	Empty   bool
	Valid   bool
	Raw     []byte
	Decoded map[string]interface{}
}

// ReadSlotSegment dumps size bytes from offset via openFPGALoader
// --dump-flash into a temporary file, then returns its contents. reset
// controls whether the device is reset after this read; only the final
// slot of a status session should request a reset.
func (p *Programmer) ReadSlotSegment(offset, size int, reset bool) ([]byte, error) {
	tmp, err := os.CreateTemp("", "*.dump.bin")
	if err != nil {
		return nil, tqerr.Wrap(tqerr.KindProgrammerExitNonZero, err,
			"cannot create scratch file for flash dump: %s", err.Error())
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	args := []string{"-c", p.CableID, "--dump-flash", "-o", fmt.Sprintf("0x%x", offset), "--file-size", strconv.Itoa(size)}
	if !reset {
		args = append(args, "--skip-reset")
	}
	args = append(args, tmp.Name())

	cmd := exec.Command(p.Binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, tqerr.Wrap(tqerr.KindProgrammerExitNonZero, err,
			"dump-flash failed at 0x%X: %s: %s", offset, err.Error(), out)
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, tqerr.Wrap(tqerr.KindProgrammerExitNonZero, err,
			"cannot read back flash dump: %s", err.Error())
	}
	return data, nil
}

func isEmptyFlash(data []byte) bool {
	for _, b := range data {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// parseJSONFromFlash extracts and decodes the JSON document stored at the
// front of a manifest segment, terminated by the first 0x00 or 0xFF byte.
func parseJSONFromFlash(data []byte) (map[string]interface{}, bool) {
	end := len(data)
	if i := bytes.IndexByte(data, 0x00); i != -1 && i < end {
		end = i
	}
	if i := bytes.IndexByte(data, 0xFF); i != -1 && i < end {
		end = i
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data[:end], &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

// ReadStatus reads and classifies every slot's manifest region, resetting
// the device only after the final slot's read. Errors reading an individual
// slot are reported but don't abort the remaining slots.
func (p *Programmer) ReadStatus() []SlotStatus {
	tqlog.StatusMessage(tqlog.VerbosityDefault, "Reading manifests from flash...\n")

	statuses := make([]SlotStatus, 0, layout.NManifests)
	for slot := 0; slot < layout.NManifests; slot++ {
		sl := flashlayout.ForSlot(slot)
		offset := sl.ManifestAddr()
		isLast := slot == layout.NManifests-1

		tqlog.StatusMessage(tqlog.VerbosityDefault,
			"\nReading Slot %d manifest at 0x%X:\n", slot, offset)

		data, err := p.ReadSlotSegment(offset, layout.ManifestSize, isLast)
		if err != nil {
			tqlog.ErrorMessage(tqlog.VerbosityDefault, "  error reading flash: %s\n", err.Error())
			continue
		}

		status := SlotStatus{Slot: slot, Addr: offset, Raw: data}
		switch {
		case isEmptyFlash(data):
			status.Empty = true
		default:
			if decoded, ok := parseJSONFromFlash(data); ok {
				status.Valid = true
				status.Decoded = decoded
			}
		}
		statuses = append(statuses, status)
	}

	return statuses
}
