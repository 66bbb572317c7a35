// Package config loads and validates the relay's runtime configuration from
// environment variables (RELAY_* prefix, optional .env in dev) with a small
// set of flag overrides.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pion/webrtc/v4"

	"github.com/counselmeet/room-relay/internal/origin"
)

const envPrefix = "RELAY"

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "production"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

const (
	DefaultListenAddr      = "127.0.0.1:8080"
	DefaultShutdownTimeout = 15 * time.Second

	DefaultRoomCapacity = 4

	DefaultMaxSignalingMessageBytes      = 64 * 1024
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSendQueueSize                 = 32

	DefaultWSPingInterval = 20 * time.Second
	DefaultWSIdleTimeout  = 60 * time.Second
	DefaultWSWriteTimeout = 10 * time.Second

	DefaultTURNRESTTTL            = time.Hour
	DefaultTURNRESTUsernamePrefix = "relay"
)

// env is the raw envconfig binding. Everything is optional; Load applies
// defaults and validation on top.
type env struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR"`
	Mode            string        `envconfig:"MODE"`
	LogFormat       string        `envconfig:"LOG_FORMAT"`
	LogLevel        string        `envconfig:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	RoomCapacity int `envconfig:"ROOM_CAPACITY"`

	MaxSignalingMessageBytes      int64 `envconfig:"MAX_SIGNALING_MESSAGE_BYTES"`
	MaxSignalingMessagesPerSecond int   `envconfig:"MAX_SIGNALING_MESSAGES_PER_SECOND"`
	SendQueueSize                 int   `envconfig:"SEND_QUEUE_SIZE"`

	WSPingInterval time.Duration `envconfig:"WS_PING_INTERVAL"`
	WSIdleTimeout  time.Duration `envconfig:"WS_IDLE_TIMEOUT"`
	WSWriteTimeout time.Duration `envconfig:"WS_WRITE_TIMEOUT"`

	ICEServersJSON string `envconfig:"ICE_SERVERS_JSON"`
	STUNURLs       string `envconfig:"STUN_URLS"`
	TURNURLs       string `envconfig:"TURN_URLS"`
	TURNUsername   string `envconfig:"TURN_USERNAME"`
	TURNCredential string `envconfig:"TURN_CREDENTIAL"`

	TURNRESTSharedSecret   string        `envconfig:"TURN_REST_SHARED_SECRET"`
	TURNRESTTTL            time.Duration `envconfig:"TURN_REST_TTL"`
	TURNRESTUsernamePrefix string        `envconfig:"TURN_REST_USERNAME_PREFIX"`
}

// TURNREST configures ephemeral TURN credential minting for the ICE config
// endpoint. Enabled when a shared secret is set.
type TURNREST struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string
}

func (t TURNREST) Enabled() bool { return t.SharedSecret != "" }

// Config is the validated runtime configuration.
type Config struct {
	ListenAddr      string
	Mode            Mode
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration

	// AllowedOrigins overrides the same-host default origin policy. Entries
	// are normalized origins, "null", or "*".
	AllowedOrigins []string

	RoomCapacity int

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SendQueueSize                 int

	WSPingInterval time.Duration
	WSIdleTimeout  time.Duration
	WSWriteTimeout time.Duration

	// ICEServers is the STUN/TURN list handed to clients. The relay never
	// dials these itself.
	ICEServers []webrtc.ICEServer

	TURNREST TURNREST
}

// Load resolves configuration from a .env file (dev convenience), the
// process environment, and flag overrides, in that order of increasing
// precedence.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	var e env
	if err := envconfig.Process(envPrefix, &e); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	fs := flag.NewFlagSet("room-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	listenAddr := fs.String("listen-addr", "", "listen address (overrides RELAY_LISTEN_ADDR)")
	mode := fs.String("mode", "", "dev or production (overrides RELAY_MODE)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if *listenAddr != "" {
		e.ListenAddr = *listenAddr
	}
	if *mode != "" {
		e.Mode = *mode
	}

	return resolve(e)
}

func resolve(e env) (Config, error) {
	cfg := Config{
		ListenAddr:      valueOrDefault(e.ListenAddr, DefaultListenAddr),
		ShutdownTimeout: durationOrDefault(e.ShutdownTimeout, DefaultShutdownTimeout),

		RoomCapacity: intOrDefault(e.RoomCapacity, DefaultRoomCapacity),

		MaxSignalingMessageBytes:      int64OrDefault(e.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes),
		MaxSignalingMessagesPerSecond: intOrDefault(e.MaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond),
		SendQueueSize:                 intOrDefault(e.SendQueueSize, DefaultSendQueueSize),

		WSPingInterval: durationOrDefault(e.WSPingInterval, DefaultWSPingInterval),
		WSIdleTimeout:  durationOrDefault(e.WSIdleTimeout, DefaultWSIdleTimeout),
		WSWriteTimeout: durationOrDefault(e.WSWriteTimeout, DefaultWSWriteTimeout),
	}

	var err error
	if cfg.Mode, err = parseMode(e.Mode); err != nil {
		return Config{}, err
	}
	if cfg.LogFormat, err = parseLogFormat(e.LogFormat, cfg.Mode); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = parseLogLevel(e.LogLevel); err != nil {
		return Config{}, err
	}

	if cfg.WSPingInterval >= cfg.WSIdleTimeout {
		return Config{}, fmt.Errorf("%s_WS_PING_INTERVAL (%s) must be shorter than %s_WS_IDLE_TIMEOUT (%s)",
			envPrefix, cfg.WSPingInterval, envPrefix, cfg.WSIdleTimeout)
	}

	if cfg.AllowedOrigins, err = normalizeAllowedOrigins(e.AllowedOrigins); err != nil {
		return Config{}, err
	}

	cfg.TURNREST = TURNREST{
		SharedSecret:   strings.TrimSpace(e.TURNRESTSharedSecret),
		TTL:            durationOrDefault(e.TURNRESTTTL, DefaultTURNRESTTTL),
		UsernamePrefix: valueOrDefault(strings.TrimSpace(e.TURNRESTUsernamePrefix), DefaultTURNRESTUsernamePrefix),
	}

	cfg.ICEServers, err = parseICEServers(
		e.ICEServersJSON, e.STUNURLs, e.TURNURLs, e.TURNUsername, e.TURNCredential,
		cfg.TURNREST.Enabled(),
	)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// NewLogger builds the process logger from the resolved log format and level.
func NewLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogFormat == LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "prod":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid %s_MODE %q (want dev or production)", envPrefix, raw)
	}
}

func parseLogFormat(raw string, mode Mode) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		if mode == ModeProd {
			return LogFormatJSON, nil
		}
		return LogFormatText, nil
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid %s_LOG_FORMAT %q (want text or json)", envPrefix, raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s_LOG_LEVEL %q", envPrefix, raw)
	}
}

func normalizeAllowedOrigins(raw []string) ([]string, error) {
	var out []string
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" || entry == "null" {
			out = append(out, entry)
			continue
		}
		normalized, _, ok := origin.Normalize(entry)
		if !ok {
			return nil, fmt.Errorf("%s_ALLOWED_ORIGINS: invalid origin %q", envPrefix, entry)
		}
		out = append(out, normalized)
	}
	return out, nil
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func durationOrDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func int64OrDefault(value, fallback int64) int64 {
	if value <= 0 {
		return fallback
	}
	return value
}
