package logrecorder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// Switching output files and closing the one rotated away from must not
// lose entries or leave the logger pointed at a closed descriptor.
func TestOpenSwitchesOutputAndReleasesPrevious(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	logger := logrus.New()

	first, err := Open(logger, "first_")
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	logger.Info("alpha")

	second, err := Open(logger, "second_")
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("closing rotated file: %v", err)
	}
	logger.Info("bravo")
	if err := second.Close(); err != nil {
		t.Fatalf("closing current file: %v", err)
	}

	if got := readLog(t, first.Name()); !strings.Contains(got, "alpha") || strings.Contains(got, "bravo") {
		t.Fatalf("first file contents:\n%s", got)
	}
	if got := readLog(t, second.Name()); !strings.Contains(got, "bravo") || strings.Contains(got, "alpha") {
		t.Fatalf("second file contents:\n%s", got)
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestMakeDirIsIdempotent(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	dir1, err := MakeDir()
	if err != nil {
		t.Fatalf("first MakeDir: %v", err)
	}
	dir2, err := MakeDir()
	if err != nil {
		t.Fatalf("second MakeDir: %v", err)
	}
	if dir1 != dir2 {
		t.Fatalf("MakeDir returned %q then %q", dir1, dir2)
	}
	if _, err := os.Stat(filepath.Join(dir1)); err != nil {
		t.Fatalf("stat log dir: %v", err)
	}
}
