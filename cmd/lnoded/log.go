package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter tees logging output to both stdout and the rolling log file,
// the same split the teacher's daemon/log.go LogWriter performs.
type logWriter struct {
	rotatorPipe *io.PipeWriter
}

func (w *logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.rotatorPipe != nil {
		w.rotatorPipe.Write(p)
	}
	return len(p), nil
}

const (
	maxLogFileSizeKB = 10 * 1024
	maxLogFiles      = 3
)

var (
	writer     = &logWriter{}
	backendLog = btclog.NewBackend(writer)
	logRotator *rotator.Rotator

	ltndLog = backendLog.Logger("LNOD")
)

// initLogRotator must be called before any logger is used; it points the
// writer's second output at a rolling file under logDir (spec's ambient
// logging stack, grounded on the teacher's daemon/log.go rotator wiring).
func initLogRotator(logDir string) error {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile := filepath.Join(logDir, defaultLogFilename)

	r, err := rotator.New(logFile, int64(maxLogFileSizeKB), false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("create log rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	writer.rotatorPipe = pw
	logRotator = r
	ltndLog.SetLevel(btclog.LevelInfo)
	return nil
}
