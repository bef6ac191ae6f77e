package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := GetLogger()
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stderr)
	defer logger.SetVerbose(false)

	logger.SetVerbose(false)
	Debugf("hidden %d", 1)
	Infof("shown %d", 2)
	Warnf("careful")
	Errorf("broken: %v", "x")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Debug output should be suppressed when not verbose, got: %s", out)
	}
	for _, want := range []string{"[INFO] shown 2", "[WARN] careful", "[ERROR] broken: x"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output, got: %s", want, out)
		}
	}

	buf.Reset()
	SetVerboseMode(true)
	Debugf("visible now")
	if !strings.Contains(buf.String(), "[DEBUG] visible now") {
		t.Errorf("Debug output missing in verbose mode, got: %s", buf.String())
	}
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := GetLogger()
	logger.SetOutput(&buf)
	logger.SetVerbose(true)
	defer logger.SetOutput(os.Stderr)
	defer logger.SetVerbose(false)

	err := LogOperation("purge", func() error { return os.ErrNotExist })
	if err != os.ErrNotExist {
		t.Fatalf("LogOperation should return the operation error, got %v", err)
	}
	if !strings.Contains(buf.String(), "Operation failed: purge") {
		t.Errorf("Expected failure to be logged, got: %s", buf.String())
	}
}

func TestBackgroundLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "sync.log")

	bgLogger, err := NewBackgroundLogger(logPath)
	if err != nil {
		t.Fatalf("Failed to create background logger: %v", err)
	}

	if bgLogger.Path() != logPath {
		t.Errorf("Path() = %s, want %s", bgLogger.Path(), logPath)
	}

	if _, err := bgLogger.Writer().Write([]byte("sync finished\n")); err != nil {
		t.Fatalf("Failed to write log line: %v", err)
	}
	if err := bgLogger.Close(); err != nil {
		t.Fatalf("Failed to close background logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "sync finished") {
		t.Errorf("Log file missing message, got: %s", data)
	}
}

func TestBackgroundLoggerDefaultPath(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	bgLogger, err := NewBackgroundLogger("")
	if err != nil {
		t.Fatalf("Failed to create background logger: %v", err)
	}
	defer bgLogger.Close()

	want := filepath.Join(state, "gomarks", "sync.log")
	if bgLogger.Path() != want {
		t.Errorf("Path() = %s, want %s", bgLogger.Path(), want)
	}
}
