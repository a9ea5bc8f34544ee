// Package programmer drives the external openFPGALoader process: scanning
// for an attached device, generating and running flash write commands, and
// reading back per-slot manifest status.
package programmer

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/apfaudio/tiliqua-sub000/internal/tqlog"
	"github.com/apfaudio/tiliqua-sub000/pkg/manifest"
	"github.com/apfaudio/tiliqua-sub000/pkg/resolve"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

// Programmer wraps the openFPGALoader binary invocation. Binary and CableID
// are the configurable knobs; everything else in this package shells out
// through them.
type Programmer struct {
	Binary  string
	CableID string
}

// New returns a Programmer using the given binary name/path and cable
// identifier (passed to openFPGALoader's -c flag).
func New(binary, cableID string) *Programmer {
	if binary == "" {
		binary = "openFPGALoader"
	}
	if cableID == "" {
		cableID = "dirtyJtag"
	}
	return &Programmer{Binary: binary, CableID: cableID}
}

var (
	vendorMarkerRe = regexp.MustCompile(`(?i)apfbug|apf\.audio`)
	serialRe       = regexp.MustCompile(`\b([A-F0-9]{16})\b`)
	productRe      = regexp.MustCompile(`(?i)(Tiliqua\s+R\d+[^$]*)`)
	hwRevRe        = regexp.MustCompile(`(?i)R(\d+)`)
)

// Scan invokes openFPGALoader --scan-usb and returns the hardware major
// revision of the first attached Tiliqua device found.
func (p *Programmer) Scan() (int, error) {
	tqlog.StatusMessage(tqlog.VerbosityDefault, "Scan for Tiliqua...\n")

	cmd := exec.Command(p.Binary, "--scan-usb")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, tqerr.Wrap(tqerr.KindProgrammerNotFound, err,
			"error running %s: %s", p.Binary, err.Error())
	}
	tqlog.StatusMessage(tqlog.VerbosityVerbose, "%s\n", out)

	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if !vendorMarkerRe.MatchString(line) {
			continue
		}

		serialMatch := serialRe.FindStringSubmatch(line)
		productMatch := productRe.FindStringSubmatch(line)
		if serialMatch == nil || productMatch == nil {
			continue
		}

		hwMatch := hwRevRe.FindStringSubmatch(productMatch[1])
		if hwMatch == nil {
			return 0, tqerr.New(tqerr.KindMalformedProductString,
				"found tiliqua-like device, but product code is malformed (update RP2040?)")
		}

		hwRev, err := strconv.Atoi(hwMatch[1])
		if err != nil {
			return 0, tqerr.Wrap(tqerr.KindMalformedProductString, err,
				"cannot parse hardware revision: %s", err.Error())
		}

		tqlog.StatusMessage(tqlog.VerbosityDefault,
			"Found attached Tiliqua! (hw_rev=%d, serial=%s)\n", hwRev, serialMatch[1])
		return hwRev, nil
	}

	return 0, tqerr.New(tqerr.KindNoDeviceFound,
		"could not find Tiliqua debugger; check it is turned on, plugged in, and RP2040 firmware is up to date")
}

// flashFileCmd builds an openFPGALoader write-command argv for one region.
func (p *Programmer) flashFileCmd(filePath string, offset int, skipReset bool) []string {
	cmd := []string{p.Binary, "-c", p.CableID, "-f", "-o", fmt.Sprintf("0x%x", offset), "--file-type", "raw"}
	if skipReset {
		cmd = append(cmd, "--skip-reset")
	}
	cmd = append(cmd, filePath)
	return cmd
}

// GenerateCommands builds the ordered sequence of flash write commands for
// regions, applying erase_option_storage policy and skip-reset to all but
// the last command. Any temporary erased-content files it creates for
// OptionStorage regions are returned in cleanup so callers can remove them
// once the commands have run.
func GenerateCommands(p *Programmer, regions []resolve.FlashableRegion, eraseOptionStorage bool) (commands [][]string, cleanup []string, err error) {
	for _, r := range regions {
		if r.Region.RegionType == manifest.RoleOptionStorage {
			if !eraseOptionStorage {
				continue
			}
			tmp, terr := createErasedFile(r.Region.Size)
			if terr != nil {
				return nil, cleanup, terr
			}
			cleanup = append(cleanup, tmp)
			commands = append(commands, p.flashFileCmd(tmp, r.Addr, false))
			continue
		}
		commands = append(commands, p.flashFileCmd(r.SourcePath, r.Addr, false))
	}

	for i := 0; i < len(commands)-1; i++ {
		commands[i] = insertSkipReset(commands[i])
	}

	return commands, cleanup, nil
}

func insertSkipReset(cmd []string) []string {
	for _, a := range cmd {
		if a == "--skip-reset" {
			return cmd
		}
	}
	out := make([]string, 0, len(cmd)+1)
	out = append(out, cmd[:len(cmd)-1]...)
	out = append(out, "--skip-reset", cmd[len(cmd)-1])
	return out
}

func createErasedFile(size int) (string, error) {
	f, err := os.CreateTemp("", "*.erase.bin")
	if err != nil {
		return "", tqerr.Wrap(tqerr.KindProgrammerExitNonZero, err,
			"cannot create erase-pattern file: %s", err.Error())
	}
	defer f.Close()

	fill := make([]byte, size)
	for i := range fill {
		fill[i] = 0xFF
	}
	if _, err := f.Write(fill); err != nil {
		os.Remove(f.Name())
		return "", tqerr.Wrap(tqerr.KindProgrammerExitNonZero, err,
			"cannot write erase-pattern file: %s", err.Error())
	}

	return f.Name(), nil
}

// PreviewCommands renders commands for display before execution, using
// shell-quoting so the preview is copy/pasteable.
func PreviewCommands(commands [][]string) string {
	var sb strings.Builder
	for _, cmd := range commands {
		sb.WriteString("\t$ ")
		sb.WriteString(shellquote.Join(cmd...))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Confirm prompts the user on stdin/stdout and reports whether they agreed.
func Confirm(prompt string) bool {
	fmt.Printf("\n%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}

// Execute runs commands sequentially, aborting on the first non-zero exit.
// Temporary files in cleanup are removed once execution finishes,
// regardless of success or failure, since they're single-use scratch
// content for this session only.
func Execute(commands [][]string, cleanup []string) error {
	defer func() {
		for _, path := range cleanup {
			os.Remove(path)
		}
	}()

	tqlog.StatusMessage(tqlog.VerbosityDefault, "\nExecuting flash commands...\n")
	for _, cmd := range commands {
		c := exec.Command(cmd[0], cmd[1:]...)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return tqerr.Wrap(tqerr.KindProgrammerExitNonZero, err,
				"command failed: %s: %s", shellquote.Join(cmd...), err.Error())
		}
	}
	tqlog.StatusMessage(tqlog.VerbosityDefault, "\nFlashing completed successfully\n")
	return nil
}
