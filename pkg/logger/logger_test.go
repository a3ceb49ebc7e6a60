package logger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"davmigrate/pkg/config"
)

func newBufferLogger(buf *bytes.Buffer) *zerologLogger {
	return &zerologLogger{z: zerolog.New(buf).Level(zerolog.DebugLevel)}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "empty level defaults to info", cfg: &config.LoggingConfig{}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "chatty"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && l == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "davmigrate.log")
	var console bytes.Buffer

	l, err := newWithConsole(&config.LoggingConfig{Level: "info", File: path}, &console)
	if err != nil {
		t.Fatalf("newWithConsole() error = %v", err)
	}

	l.WithField("entity", "Account").Info("batch uploaded")
	l.Debug("below level")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"app":"davmigrate"`, `"entity":"Account"`, `"message":"batch uploaded"`} {
		if !strings.Contains(out, want) {
			t.Errorf("file output missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "below level") {
		t.Error("debug entry written at info level")
	}
	if !strings.Contains(console.String(), "batch uploaded") {
		t.Error("console output missing message")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if err != nil {
			t.Errorf("parseLogLevel(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.WithField("run_id", "r-1").
		WithFields(map[string]interface{}{"entity": "Contract", "batch": 3}).
		WithError(errors.New("503 service unavailable")).
		Error("upload failed")

	out := buf.String()
	for _, want := range []string{`"run_id":"r-1"`, `"entity":"Contract"`, `"batch":3`, `"error":"503 service unavailable"`, "upload failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)
	if l.WithError(nil) != Logger(l) {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestStructuredFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.InfoWithFields("upload progress", map[string]interface{}{
		"index":    2,
		"bytes":    int64(2048),
		"done":     false,
		"elapsed":  1500 * time.Millisecond,
		"entities": []string{"Account", "Contact"},
	})

	out := buf.String()
	for _, want := range []string{`"index":2`, `"bytes":2048`, `"done":false`, `"entities":["Account","Contact"]`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.WithField("k", "v").InfoWithFields("ignored", map[string]interface{}{"n": 1})
	l.WithError(errors.New("boom")).Error("ignored")
}

func TestGlobalLogger(t *testing.T) {
	if err := Initialize(&config.LoggingConfig{Level: "error"}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil")
	}
	if err := Initialize(&config.LoggingConfig{Level: "bogus"}); err == nil {
		t.Error("Initialize() accepted an invalid level")
	}
}

func TestTestLoggerCapturesDerivedFields(t *testing.T) {
	tl := NewTestLogger()
	child := tl.WithField("entity", "Account")

	child.WarnWithFields("skipped file", map[string]interface{}{"file_id": "F9"})
	tl.Info("done")

	msgs := tl.GetMessages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Fields["entity"] != "Account" || msgs[0].Fields["file_id"] != "F9" {
		t.Errorf("unexpected fields %v", msgs[0].Fields)
	}
	if _, ok := msgs[1].Fields["entity"]; ok {
		t.Error("parent logger picked up child fields")
	}
	if !tl.HasMessage("skipped file") || tl.HasError() {
		t.Errorf("unexpected capture state:\n%s", tl.String())
	}

	tl.Clear()
	if len(tl.GetMessages()) != 0 {
		t.Error("Clear() left messages behind")
	}
}
