// Package logrecorder points a logrus logger at dated, periodically rotated
// log files, for long-running monitor sessions.
package logrecorder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// NowString returns the current time formatted as "20060102_1504".
func NowString() string {
	return time.Now().Format("20060102_1504")
}

// MakeDir creates a directory named after the current date (e.g. 2026_08_26)
// and returns its path.
func MakeDir() (string, error) {
	now := time.Now()
	dirName := fmt.Sprintf("%d_%02d_%02d", now.Year(), now.Month(), now.Day())
	fullPath := filepath.Join(".", dirName)

	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		if err := os.MkdirAll(fullPath, 0755); err != nil {
			return "", fmt.Errorf("creating log directory: %w", err)
		}
	}
	return fullPath, nil
}

// Open points the logger's output at a fresh log file named after prefix and
// the current timestamp, inside the dated directory. The returned file stays
// open until the caller closes it; close only after the logger has been
// pointed elsewhere.
func Open(logger *logrus.Logger, prefix string) (*os.File, error) {
	dir, err := MakeDir()
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(dir, fmt.Sprintf("%s%s.log", prefix, NowString()))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	logger.SetOutput(f)
	return f, nil
}

// OpenAndRotate opens an initial log file and then switches to a fresh one
// every 5 minutes, closing the file it rotates away from. On a rotation
// failure the logger keeps writing to the current file.
func OpenAndRotate(logger *logrus.Logger, prefix string) error {
	prev, err := Open(logger, prefix)
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			next, err := Open(logger, prefix)
			if err != nil {
				logger.WithError(err).Warn("log rotation failed")
				continue
			}
			prev.Close()
			prev = next
		}
	}()
	return nil
}
