package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/statewarp/internal/codec"
	"github.com/danmuck/statewarp/internal/transport/tcpnet"
)

const defaultLinkBase = "statewarp://join"

type consoleConfig struct {
	Enabled     bool
	Addr        string
	CORSOrigins []string
}

type peerConfig struct {
	TCP          tcpnet.Config
	LinkBase     string
	ShowQR       bool
	Console      consoleConfig
	InitialState any
}

type fileConfig struct {
	ListenAddr       string   `toml:"listen_addr"`
	AdvertiseAddr    string   `toml:"advertise_addr"`
	DialTimeout      string   `toml:"dial_timeout"`
	HandshakeTimeout string   `toml:"handshake_timeout"`
	WriteTimeout     string   `toml:"write_timeout"`
	MaxPayloadBytes  uint64   `toml:"max_payload_bytes"`
	LinkBase         string   `toml:"link_base"`
	ShowQR           bool     `toml:"show_qr"`
	ConsoleEnabled   bool     `toml:"console_enabled"`
	ConsoleAddr      string   `toml:"console_addr"`
	CORSOrigins      []string `toml:"cors_origins"`
	InitialState     string   `toml:"initial_state"`
	Attachments      []string `toml:"attachments"`
}

func defaultPeerConfig() peerConfig {
	return peerConfig{
		TCP:      tcpnet.DefaultConfig(),
		LinkBase: defaultLinkBase,
		ShowQR:   true,
		Console: consoleConfig{
			Addr:        "127.0.0.1:7410",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		InitialState: map[string]any{},
	}
}

func loadPeerConfig(path string) (peerConfig, error) {
	cfg := defaultPeerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return peerConfig{}, fmt.Errorf("load warpctl config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		cfg.TCP.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("advertise_addr") {
		cfg.TCP.AdvertiseAddr = strings.TrimSpace(raw.AdvertiseAddr)
	}
	if meta.IsDefined("dial_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DialTimeout))
		if err != nil {
			return peerConfig{}, fmt.Errorf("parse dial_timeout: %w", err)
		}
		cfg.TCP.DialTimeout = d
	}
	if meta.IsDefined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return peerConfig{}, fmt.Errorf("parse handshake_timeout: %w", err)
		}
		cfg.TCP.HandshakeTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return peerConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.TCP.WriteTimeout = d
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.TCP.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}
	if meta.IsDefined("link_base") {
		if base := strings.TrimSpace(raw.LinkBase); base != "" {
			cfg.LinkBase = base
		}
	}
	if meta.IsDefined("show_qr") {
		cfg.ShowQR = raw.ShowQR
	}
	if meta.IsDefined("console_enabled") {
		cfg.Console.Enabled = raw.ConsoleEnabled
	}
	if meta.IsDefined("console_addr") {
		cfg.Console.Addr = strings.TrimSpace(raw.ConsoleAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.Console.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if meta.IsDefined("initial_state") {
		v, err := parseInitialState(raw.InitialState)
		if err != nil {
			return peerConfig{}, err
		}
		cfg.InitialState = v
	}
	if meta.IsDefined("attachments") {
		v, err := withAttachments(cfg.InitialState, raw.Attachments)
		if err != nil {
			return peerConfig{}, err
		}
		cfg.InitialState = v
	}

	cfg.TCP = cfg.TCP.WithDefaults()
	return cfg, nil
}

func parseInitialState(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	v, err := codec.DecodeJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse initial_state: %w", err)
	}
	return v, nil
}

// withAttachments adds key=path file attachments to a map-shaped state.
func withAttachments(state any, entries []string) (any, error) {
	entries = normalizeList(entries)
	if len(entries) == 0 {
		return state, nil
	}
	m, ok := state.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("attachments need a map initial state, got %T", state)
	}
	out := make(map[string]any, len(m)+len(entries))
	for k, v := range m {
		out[k] = v
	}
	for _, entry := range entries {
		key, path, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		path = strings.TrimSpace(path)
		if !ok || key == "" || path == "" {
			return nil, fmt.Errorf("invalid attachment %q: want key=path", entry)
		}
		att, err := codec.FileAttachment(path)
		if err != nil {
			return nil, err
		}
		out[key] = att
	}
	return out, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
