package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRelayAddr   = ":8888"
	DefaultServerAddr  = "localhost:8888"
	DefaultChatLogFile = "chat_history.txt"
)

type RelayConfig struct {
	// Addr is the TCP listen address for game sessions.
	Addr string
	// WSAddr, when set, also accepts sessions over WebSocket at /ws.
	WSAddr string
	// StatusAddr, when set, serves the read-only status API.
	StatusAddr string

	RedisURL    string
	DatabaseURL string

	// SendQueue bounds each session's outbound queue, counted in messages.
	SendQueue    int
	WriteTimeout time.Duration

	MessagesDir string
}

type ClientConfig struct {
	// Server is host:port, tcp://host:port or a ws:// URL.
	Server      string
	ChatLogFile string
	StatusURL   string
	MessagesDir string
	// Lang selects the message catalog (messages.<lang>.yaml).
	Lang string
}

func LoadRelay() (*RelayConfig, error) {
	cfg := &RelayConfig{
		Addr:         DefaultRelayAddr,
		SendQueue:    64,
		WriteTimeout: 5 * time.Second,
	}

	if v := getenv("RELAY_ADDR"); v != "" {
		cfg.Addr = v
	}
	cfg.WSAddr = getenv("RELAY_WS_ADDR")
	cfg.StatusAddr = getenv("STATUS_ADDR")
	cfg.RedisURL = getenv("REDIS_URL")
	cfg.DatabaseURL = getenv("DATABASE_URL")
	cfg.MessagesDir = getenv("MESSAGES_DIR")

	if v := getenv("RELAY_SEND_QUEUE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendQueue = n
		}
	}
	if v := getenv("RELAY_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.WriteTimeout = d
		} else if n, err := strconv.Atoi(v); err == nil && n > 0 { // plain seconds
			cfg.WriteTimeout = time.Duration(n) * time.Second
		}
	}

	if cfg.WSAddr != "" && cfg.WSAddr == cfg.Addr {
		return nil, errors.New("RELAY_WS_ADDR must differ from RELAY_ADDR")
	}
	if cfg.StatusAddr != "" && (cfg.StatusAddr == cfg.Addr || cfg.StatusAddr == cfg.WSAddr) {
		return nil, errors.New("STATUS_ADDR must differ from the relay listeners")
	}
	return cfg, nil
}

func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		Server:      DefaultServerAddr,
		ChatLogFile: DefaultChatLogFile,
		Lang:        "en",
	}
	if v := getenv("CHECKERS_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := getenv("CHAT_LOG_FILE"); v != "" {
		cfg.ChatLogFile = v
	}
	cfg.StatusURL = strings.TrimRight(getenv("CHECKERS_STATUS_URL"), "/")
	cfg.MessagesDir = getenv("MESSAGES_DIR")
	if v := getenv("CHECKERS_LANG"); v != "" {
		cfg.Lang = strings.ToLower(v)
	}

	if cfg.StatusURL != "" && !strings.HasPrefix(cfg.StatusURL, "http://") && !strings.HasPrefix(cfg.StatusURL, "https://") {
		return nil, errors.New("CHECKERS_STATUS_URL must be an http(s) URL")
	}
	return cfg, nil
}

func getenv(k string) string { return strings.TrimSpace(os.Getenv(k)) }
