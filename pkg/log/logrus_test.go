package log

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestSimpleFormatterFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("debug", &buf)

	logger.WithField("mode", "STANDUP").WithField("id", 7).Warnf("switching %s", "now")

	line := buf.String()
	if !strings.Contains(line, "[WAR] switching now") {
		t.Errorf("Expected level and message in output, got %q", line)
	}
	if !strings.HasSuffix(line, " id=7 mode=STANDUP\n") {
		t.Errorf("Expected sorted fields at end of line, got %q", line)
	}
}

func TestWriterLoggerLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("not-a-level", &buf)

	logger.Debugf("hidden")
	logger.Infof("visible")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Debug line should be filtered at the default info level")
	}
	if !strings.Contains(buf.String(), "[INF] visible") {
		t.Errorf("Expected info line, got %q", buf.String())
	}
}

func TestNewLogrusLoggerCreatesFile(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	logger, err := NewLogrusLogger("info", logDir)
	if err != nil {
		t.Fatalf("NewLogrusLogger failed: %v", err)
	}
	logger.Infof("hello file")

	data, err := os.ReadFile(filepath.Join(logDir, "controller.log"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("Expected log file to contain message, got %q", string(data))
	}
}

func TestWriterLoggerUsesMicrosecondTimestamps(t *testing.T) {
	var buf bytes.Buffer
	NewWriterLogger("info", &buf).Infof("tick")

	pattern := regexp.MustCompile(`^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}\.\d{6} \[INF\] tick\n$`)
	if !pattern.MatchString(buf.String()) {
		t.Errorf("Unexpected line format %q", buf.String())
	}
}
