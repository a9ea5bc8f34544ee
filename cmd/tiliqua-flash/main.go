// Command tiliqua-flash flashes Tiliqua bitstream archives to an attached
// device and reads back per-slot status, via openFPGALoader.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"

	"github.com/apfaudio/tiliqua-sub000/internal/tqlog"
	"github.com/apfaudio/tiliqua-sub000/pkg/archive"
	"github.com/apfaudio/tiliqua-sub000/pkg/flashcfg"
	"github.com/apfaudio/tiliqua-sub000/pkg/flashlayout"
	"github.com/apfaudio/tiliqua-sub000/pkg/layout"
	"github.com/apfaudio/tiliqua-sub000/pkg/programmer"
	"github.com/apfaudio/tiliqua-sub000/pkg/resolve"
	"github.com/apfaudio/tiliqua-sub000/pkg/tqerr"
)

var toolVersion = "0.1.0"

var (
	verbosity   int
	logLevel    string
	logfilePath string
)

// fatal prints an error and exits with the code appropriate for its kind,
// mirroring the teacher's NewtUsage fatal-error-and-exit pattern.
func fatal(cmd *cobra.Command, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
	}
	if cmd != nil {
		cmd.Usage()
	}
	os.Exit(tqerr.ExitCode(tqerr.KindOf(err)))
}

func parseLogLevel(s string) log.Level {
	level, err := log.ParseLevel(s)
	if err != nil {
		return log.WarnLevel
	}
	return level
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tiliqua-flash",
		Short: "Flash Tiliqua bitstream archives and read back device status",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return tqlog.Init(parseLogLevel(logLevel), logfilePath, verbosity)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Usage()
		},
	}

	root.PersistentFlags().IntVarP(&verbosity, "verbosity", "v",
		tqlog.VerbosityDefault, "How verbose tiliqua-flash should be about its operation")
	root.PersistentFlags().StringVarP(&logLevel, "loglevel", "l",
		"WARN", "Log level, defaults to WARN")
	root.PersistentFlags().StringVar(&logfilePath, "logfile", "",
		"Optional path to also write debug logs to")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newFlashCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tiliqua-flash version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("tiliqua-flash version:", toolVersion)
		},
	}
}

func newFlashCmd() *cobra.Command {
	flashCmd := &cobra.Command{
		Use:   "flash",
		Short: "Flash or inspect Tiliqua bitstream slots",
	}

	flashCmd.AddCommand(newFlashArchiveCmd())
	flashCmd.AddCommand(newFlashStatusCmd())

	return flashCmd
}

func newFlashArchiveCmd() *cobra.Command {
	var slot int
	var hasSlot bool
	var noconfirm bool
	var eraseOptionStorage bool

	cmd := &cobra.Command{
		Use:   "archive <path>",
		Short: "Flash a bitstream archive to an attached Tiliqua",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := flashcfg.Load()
			if err != nil {
				fatal(cmd, err)
			}

			if hasSlot && !flashlayout.SlotInRange(slot) {
				fatal(cmd, tqerr.Newf(tqerr.KindSlotOutOfRange,
					"slot must be between 0 and %d", layout.NManifests-1))
			}

			if _, err := os.Stat(args[0]); err != nil {
				fatal(cmd, tqerr.Wrap(tqerr.KindArchiveNotFound, err,
					"archive not found: %s", args[0]))
			}

			p := programmer.New(cfg.ProgrammerBinary, cfg.CableID)
			hwRev, err := p.Scan()
			if err != nil {
				fatal(cmd, err)
			}

			loader, err := archive.Open(args[0])
			if err != nil {
				fatal(cmd, err)
			}
			defer loader.Close()

			var target resolve.Target
			if hasSlot {
				target = resolve.ForSlot(slot)
			} else {
				target = resolve.ForBootloader()
			}

			result, err := resolve.Resolve(loader.Manifest(), loader.ScratchDir(), target, hwRev)
			if err != nil {
				fatal(cmd, err)
			}
			if err := resolve.WriteRevisedManifest(result, loader.ScratchDir()); err != nil {
				fatal(cmd, err)
			}

			fmt.Println("\nRegions to flash:")
			fmt.Print(result.String())

			eraseOpt := cfg.EraseOptionStorage
			if cmd.Flags().Changed("erase-option-storage") {
				eraseOpt = eraseOptionStorage
			}
			commands, cleanup, err := programmer.GenerateCommands(p, result.Regions, eraseOpt)
			if err != nil {
				fatal(cmd, err)
			}

			fmt.Println("\nThe following commands will be executed:")
			fmt.Print(programmer.PreviewCommands(commands))

			if !noconfirm && !programmer.Confirm("Proceed with flashing?") {
				fmt.Println("Aborting.")
				os.Exit(tqerr.ExitCode(tqerr.KindConfirmationDeclined))
			}

			if err := programmer.Execute(commands, cleanup); err != nil {
				fatal(cmd, err)
			}
		},
	}

	cmd.Flags().IntVar(&slot, "slot", 0, "Target slot number (omit for bootloader archives)")
	cmd.Flags().BoolVar(&noconfirm, "noconfirm", false, "Do not ask for confirmation before flashing")
	cmd.Flags().BoolVar(&eraseOptionStorage, "erase-option-storage", false,
		"Erase option storage regions described by the manifest")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		hasSlot = cmd.Flags().Changed("slot")
	}

	return cmd
}

func newFlashStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read and decode each slot's manifest from flash",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := flashcfg.Load()
			if err != nil {
				fatal(cmd, err)
			}

			p := programmer.New(cfg.ProgrammerBinary, cfg.CableID)
			if _, err := p.Scan(); err != nil {
				fatal(cmd, err)
			}

			statuses := p.ReadStatus()

			fmt.Println("\nMANIFESTS:")
			fmt.Println("----------------------------------------")
			for _, s := range statuses {
				fmt.Printf("\nSlot %d manifest at 0x%X:\n", s.Slot, s.Addr)
				switch {
				case s.Empty:
					fmt.Println("  status: empty (all 0xFF)")
				case s.Valid:
					fmt.Println("  status: valid manifest")
					fmt.Printf("  contents: %+v\n", s.Decoded)
				default:
					n := len(s.Raw)
					if n > 32 {
						n = 32
					}
					fmt.Println("  status: data is there, but does not look like a manifest")
					fmt.Printf("  first %d bytes: %x\n", n, s.Raw[:n])
				}
			}
		},
	}
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fatal(root, err)
	}
}
