package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("Mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("LogFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.RoomCapacity != DefaultRoomCapacity {
		t.Fatalf("RoomCapacity=%d, want %d", cfg.RoomCapacity, DefaultRoomCapacity)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.WSPingInterval != DefaultWSPingInterval || cfg.WSIdleTimeout != DefaultWSIdleTimeout {
		t.Fatalf("keepalive defaults wrong: ping=%s idle=%s", cfg.WSPingInterval, cfg.WSIdleTimeout)
	}
	if cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST must be disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_LISTEN_ADDR", "0.0.0.0:9000")
	t.Setenv("RELAY_MODE", "production")
	t.Setenv("RELAY_ROOM_CAPACITY", "2")
	t.Setenv("RELAY_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("RELAY_ALLOWED_ORIGINS", "https://App.Example.com,*")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Fatalf("ListenAddr=%q", cfg.ListenAddr)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("Mode=%q, want production", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("LogFormat=%q, want json default in production", cfg.LogFormat)
	}
	if cfg.RoomCapacity != 2 {
		t.Fatalf("RoomCapacity=%d, want 2", cfg.RoomCapacity)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout=%s, want 3s", cfg.ShutdownTimeout)
	}
	want := []string{"https://app.example.com", "*"}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != want[0] || cfg.AllowedOrigins[1] != want[1] {
		t.Fatalf("AllowedOrigins=%v, want %v", cfg.AllowedOrigins, want)
	}
}

func TestLoad_FlagsWinOverEnv(t *testing.T) {
	t.Setenv("RELAY_LISTEN_ADDR", "0.0.0.0:9000")

	cfg, err := Load([]string{"-listen-addr", "127.0.0.1:7777", "-mode", "production"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7777" {
		t.Fatalf("ListenAddr=%q, want flag value", cfg.ListenAddr)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("Mode=%q, want production", cfg.Mode)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		envKey string
		value  string
		substr string
	}{
		{"bad mode", "RELAY_MODE", "staging", "RELAY_MODE"},
		{"bad log format", "RELAY_LOG_FORMAT", "xml", "RELAY_LOG_FORMAT"},
		{"bad log level", "RELAY_LOG_LEVEL", "verbose", "RELAY_LOG_LEVEL"},
		{"bad origin", "RELAY_ALLOWED_ORIGINS", "ftp://x", "RELAY_ALLOWED_ORIGINS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.envKey, tc.value)
			_, err := Load(nil)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.substr) {
				t.Fatalf("err=%v, want mention of %s", err, tc.substr)
			}
		})
	}
}

func TestLoad_RejectsPingIntervalNotBelowIdleTimeout(t *testing.T) {
	t.Setenv("RELAY_WS_PING_INTERVAL", "60s")
	t.Setenv("RELAY_WS_IDLE_TIMEOUT", "30s")
	if _, err := Load(nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_TURNREST(t *testing.T) {
	t.Setenv("RELAY_TURN_REST_SHARED_SECRET", "s3cret")
	t.Setenv("RELAY_ICE_SERVERS_JSON", `[{"urls": ["turn:turn.example.com:3478"]}]`)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST should be enabled")
	}
	if cfg.TURNREST.TTL != DefaultTURNRESTTTL {
		t.Fatalf("TTL=%s, want default %s", cfg.TURNREST.TTL, DefaultTURNRESTTTL)
	}
	if cfg.TURNREST.UsernamePrefix != DefaultTURNRESTUsernamePrefix {
		t.Fatalf("UsernamePrefix=%q, want %q", cfg.TURNREST.UsernamePrefix, DefaultTURNRESTUsernamePrefix)
	}
	// Credential-less TURN urls are accepted because credentials are injected
	// per request.
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("ICEServers=%#v", cfg.ICEServers)
	}
}
