package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: " INFO ", want: LevelInfo},
		{in: "Warn", want: LevelWarn},
		{in: "off", want: LevelOff},
		{in: "trace", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseLevel(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelInfo, &buf)
	l.Debugf("scan: hidden %d", 1)
	l.Infof("scan: visible %d", 2)
	_ = l.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry written at info level: %q", out)
	}
	if !strings.Contains(out, "visible 2") || !strings.Contains(out, "INFO") {
		t.Fatalf("info entry missing: %q", out)
	}
}

func TestNewLoggerOff(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelOff, &buf)
	l.Error("scan: nothing")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
