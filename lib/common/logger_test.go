package common

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logger.LogLevel
		wantErr bool
	}{
		{"debug", logger.DEBUG, false},
		{"INFO", logger.INFO, false},
		{"", logger.INFO, false},
		{"warn", logger.WARNING, false},
		{"warning", logger.WARNING, false},
		{"error", logger.ERROR, false},
		{"verbose", logger.INFO, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q): unexpected error state %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	prev := output
	output = &buf
	defer func() { output = prev }()

	l := CreateLogger("store")
	l.SetLevel(logger.WARNING)

	l.Debugf("hidden %d", 1)
	l.Infof("hidden %d", 2)
	l.Warningf("shown %d", 3)
	l.Errorf("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug and info lines to be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "WARN  | store      | shown 3") {
		t.Errorf("Expected formatted warning line, got:\n%s", out)
	}
	if !strings.Contains(out, "ERROR | store      | shown 4") {
		t.Errorf("Expected formatted error line, got:\n%s", out)
	}
}

func TestInitLoggersInvalidLevel(t *testing.T) {
	if err := InitLoggers("loud", nil); err == nil {
		t.Errorf("Expected error for invalid level")
	}
}
