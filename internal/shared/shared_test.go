package shared

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

func TestLogger(t *testing.T) {
	t.Run("Writes To Writer", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf)
		l.Info("hello", "key", "value")

		if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "key=value") {
			t.Errorf("expected log line with message and key, got %q", buf.String())
		}
	})

	t.Run("Child Logger Carries Fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := WithLogger(NewLogger(&buf), "component", "store")
		l.Info("loaded")

		if !strings.Contains(buf.String(), "component=store") {
			t.Errorf("expected component field, got %q", buf.String())
		}
	})

	t.Run("Level Filters Debug", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf)
		SetLogLevel(l, log.WarnLevel)
		l.Info("quiet")

		if buf.Len() != 0 {
			t.Errorf("expected info to be filtered, got %q", buf.String())
		}
	})

	t.Run("File Logger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "cardtpl.log")
		l, f, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		l.Info("to file")
		f.Close()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log file: %v", err)
		}
		if !strings.Contains(string(data), "to file") {
			t.Errorf("expected log file to contain message, got %q", data)
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	tc := []struct {
		input   string
		want    log.Level
		wantErr bool
	}{
		{input: "", want: log.InfoLevel},
		{input: "debug", want: log.DebugLevel},
		{input: " WARN ", want: log.WarnLevel},
		{input: "error", want: log.ErrorLevel},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected unique ids")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("expected valid uuid, got %q: %v", a, err)
	}
}
