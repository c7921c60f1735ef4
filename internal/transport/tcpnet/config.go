package tcpnet

import (
	"time"

	"github.com/danmuck/statewarp/internal/protocol/frame"
)

// Config defines listener, dial and handshake behavior for a tcpnet peer.
type Config struct {
	ListenAddr string
	// AdvertiseAddr replaces the listener address inside the peer identity,
	// for peers reachable through a different host name.
	AdvertiseAddr    string
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Limits           frame.Limits
}

func DefaultConfig() Config {
	return Config{
		ListenAddr:       "127.0.0.1:0",
		DialTimeout:      5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     15 * time.Second,
		Limits:           frame.DefaultLimits(),
	}
}

// WithDefaults fills every zero field from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits.MaxPayloadBytes = def.Limits.MaxPayloadBytes
	}
	return c
}
