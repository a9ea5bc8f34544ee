// Package tqlog provides verbosity-gated status/error messages plus
// logrus-backed debug logging, modeled directly on the teacher's
// util.WriteMessage/StatusMessage/ErrorMessage and its logFormatter/initLog/
// Init.
package tqlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	VerbositySilent  = 0
	VerbosityQuiet   = 1
	VerbosityDefault = 2
	VerbosityVerbose = 3
)

var Verbosity int

var logFile *os.File

type formatter struct{}

func (f *formatter) Format(entry *log.Entry) ([]byte, error) {
	b := &bytes.Buffer{}
	b.WriteString(entry.Time.Format("2006/01/02 15:04:05.000 "))
	b.WriteString("[" + strings.ToUpper(entry.Level.String()) + "] ")
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func initLog(level log.Level, logFilename string) error {
	log.SetLevel(level)

	var writer io.Writer
	if logFilename == "" {
		writer = os.Stderr
	} else {
		var err error
		logFile, err = os.Create(logFilename)
		if err != nil {
			return err
		}
		writer = io.MultiWriter(os.Stderr, logFile)
	}

	log.SetOutput(writer)
	log.SetFormatter(&formatter{})

	return nil
}

// Init configures logrus output and the process-wide verbosity level. It
// mirrors the teacher's two-step dance: configure stderr filtering first,
// then reopen onto the logfile, so the log level applies to file-open
// failures too.
func Init(level log.Level, logfilePath string, verbosity int) error {
	if err := initLog(level, ""); err != nil {
		return err
	}
	if logfilePath != "" {
		if err := initLog(level, logfilePath); err != nil {
			return err
		}
	}

	Verbosity = verbosity
	return nil
}

// WriteMessage writes message to f if the configured verbosity is at least
// level, mirroring it to the logfile (if any).
func WriteMessage(f *os.File, level int, message string, args ...interface{}) {
	if Verbosity < level {
		return
	}
	str := fmt.Sprintf(message, args...)
	f.WriteString(str)
	f.Sync()
	if logFile != nil {
		logFile.WriteString(str)
	}
}

// StatusMessage writes a verbosity-gated message to stdout.
func StatusMessage(level int, message string, args ...interface{}) {
	WriteMessage(os.Stdout, level, message, args...)
}

// ErrorMessage writes a verbosity-gated message to stderr.
func ErrorMessage(level int, message string, args ...interface{}) {
	WriteMessage(os.Stderr, level, message, args...)
}
