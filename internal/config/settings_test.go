package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tftpd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Timeout != 2*time.Second || s.Retries != 1 || s.Port != 69 {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if s.Dally || s.TransferSize || s.BlockSize != nil || s.TimeoutOpt != nil {
		t.Errorf("options unexpectedly enabled: %+v", s)
	}
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, `
timeout: 5
retries: 3
port: 6969
dally: true
block_size: 1428
timeout_option: 10
transfer_size: true
unknown_key: ignored
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Timeout != 5*time.Second {
		t.Errorf("timeout: %v", s.Timeout)
	}
	if s.Retries != 3 {
		t.Errorf("retries: %d", s.Retries)
	}
	if s.Port != 6969 {
		t.Errorf("port: %d", s.Port)
	}
	if !s.Dally || !s.TransferSize {
		t.Errorf("booleans: %+v", s)
	}
	if s.BlockSize == nil || *s.BlockSize != 1428 {
		t.Errorf("block size: %v", s.BlockSize)
	}
	if s.TimeoutOpt == nil || *s.TimeoutOpt != 10 {
		t.Errorf("timeout option: %v", s.TimeoutOpt)
	}
}

func TestLoadClampsRanges(t *testing.T) {
	path := writeSettings(t, `
block_size: 100000
timeout_option: 4000
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.BlockSize == nil || *s.BlockSize != 65464 {
		t.Errorf("block size not clamped: %v", s.BlockSize)
	}
	if s.TimeoutOpt == nil || *s.TimeoutOpt != 255 {
		t.Errorf("timeout option not clamped: %v", s.TimeoutOpt)
	}

	path = writeSettings(t, "block_size: 2\n")
	s, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.BlockSize == nil || *s.BlockSize != 8 {
		t.Errorf("block size not clamped up: %v", s.BlockSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
