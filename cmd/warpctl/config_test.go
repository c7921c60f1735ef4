package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/statewarp/internal/codec"
)

func TestLoadPeerConfigExample(t *testing.T) {
	cfg, err := loadPeerConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.TCP.ListenAddr != "127.0.0.1:7400" {
		t.Fatalf("unexpected listen addr: %q", cfg.TCP.ListenAddr)
	}
	if cfg.TCP.DialTimeout != 5*time.Second || cfg.TCP.WriteTimeout != 15*time.Second {
		t.Fatalf("unexpected timeouts: %+v", cfg.TCP)
	}
	if cfg.TCP.Limits.MaxPayloadBytes != 16777216 {
		t.Fatalf("unexpected payload limit: %d", cfg.TCP.Limits.MaxPayloadBytes)
	}
	if cfg.LinkBase != "https://warp.local/join" {
		t.Fatalf("unexpected link base: %q", cfg.LinkBase)
	}
	if !cfg.Console.Enabled || cfg.Console.Addr != "127.0.0.1:7410" {
		t.Fatalf("unexpected console config: %+v", cfg.Console)
	}
	if len(cfg.Console.CORSOrigins) != 1 || cfg.Console.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", cfg.Console.CORSOrigins)
	}
	want := map[string]any{"count": int64(0), "title": "notes"}
	if !codec.Equal(cfg.InitialState, want) {
		t.Fatalf("unexpected initial state: %#v", cfg.InitialState)
	}
}

func TestLoadPeerConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("show_qr = false\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadPeerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ShowQR {
		t.Fatalf("expected qr disabled")
	}
	if cfg.TCP.ListenAddr != "127.0.0.1:0" {
		t.Fatalf("unexpected listen addr: %q", cfg.TCP.ListenAddr)
	}
	if cfg.LinkBase != defaultLinkBase {
		t.Fatalf("unexpected link base: %q", cfg.LinkBase)
	}
	if cfg.Console.Enabled {
		t.Fatalf("expected console disabled by default")
	}
	if m, ok := cfg.InitialState.(map[string]any); !ok || len(m) != 0 {
		t.Fatalf("expected empty map state, got %#v", cfg.InitialState)
	}
}

func TestLoadPeerConfigBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`dial_timeout = "soon"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadPeerConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadPeerConfigBadInitialState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`initial_state = '{"count":'`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadPeerConfig(path); err == nil {
		t.Fatalf("expected initial_state error")
	}
}

func TestLoadPeerConfigAttachments(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	if err := os.WriteFile(img, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}
	path := filepath.Join(dir, "config.toml")
	content := "initial_state = '{\"count\":1}'\nattachments = [\"image=" + filepath.ToSlash(img) + "\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadPeerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	m := cfg.InitialState.(map[string]any)
	att, ok := m["image"].(codec.Attachment)
	if !ok {
		t.Fatalf("expected attachment, got %#v", m["image"])
	}
	if att.Name != "a.png" || att.MIMEType != "image/png" {
		t.Fatalf("unexpected attachment: %+v", att)
	}
	if m["count"] != int64(1) {
		t.Fatalf("expected count to survive, got %#v", m["count"])
	}
}

func TestWithAttachmentsRejectsBadSpecs(t *testing.T) {
	if _, err := withAttachments(map[string]any{}, []string{"nokey"}); err == nil {
		t.Fatalf("expected error for missing separator")
	}
	if _, err := withAttachments([]any{}, []string{"a=b"}); err == nil {
		t.Fatalf("expected error for non-map state")
	}
	if _, err := withAttachments(map[string]any{}, []string{"a=/does/not/exist"}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
