package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeSettings(t, `
serverUrl: ws://localhost:5163
clearOnConnect: false
uiWaitTimeout: 45s
logging:
  level: debug
  json: true
  components: [engine, transport]
`)

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if s.ServerURL != "ws://localhost:5163" {
		t.Errorf("ServerURL = %q", s.ServerURL)
	}
	if s.ClearOnConnect == nil || *s.ClearOnConnect {
		t.Errorf("ClearOnConnect = %v, want false", s.ClearOnConnect)
	}
	d, err := s.UIWait()
	if err != nil {
		t.Fatalf("UIWait failed: %v", err)
	}
	if d != 45*time.Second {
		t.Errorf("UIWait = %v, want 45s", d)
	}
	if s.Logging.Level != "debug" || !s.Logging.JSON {
		t.Errorf("Logging = %+v", s.Logging)
	}
	if len(s.Logging.Components) != 2 {
		t.Errorf("Components = %v", s.Logging.Components)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeSettings(t, "serverUrl: [this is\nnot valid yaml")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted malformed YAML")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeSettings(t, "serverUrl: wss://example.com/ws\n")
	t.Setenv(EnvConfigPath, path)

	s, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.ServerURL != "wss://example.com/ws" {
		t.Errorf("ServerURL = %q", s.ServerURL)
	}
}

func TestLoadEnvPointsNowhere(t *testing.T) {
	// An explicitly named file that does not exist is an error, unlike
	// the missing default file.
	t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("Load ignored a missing explicit settings file")
	}
}

func TestUIWaitDefaults(t *testing.T) {
	s := &Settings{}
	d, err := s.UIWait()
	if err != nil || d != 0 {
		t.Errorf("UIWait() on empty settings = %v, %v; want 0, nil", d, err)
	}

	s.UIWaitTimeout = "not-a-duration"
	if _, err := s.UIWait(); err == nil {
		t.Error("UIWait accepted a malformed duration")
	}
}
