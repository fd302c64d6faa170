package config

import (
	"testing"
	"time"
)

func TestLoadRelayDefaults(t *testing.T) {
	for _, k := range []string{"RELAY_ADDR", "RELAY_WS_ADDR", "STATUS_ADDR", "REDIS_URL", "DATABASE_URL", "RELAY_SEND_QUEUE", "RELAY_WRITE_TIMEOUT"} {
		t.Setenv(k, "")
	}
	cfg, err := LoadRelay()
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	if cfg.Addr != ":8888" || cfg.SendQueue != 64 || cfg.WriteTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.WSAddr != "" || cfg.StatusAddr != "" {
		t.Fatalf("optional listeners must default off: %+v", cfg)
	}
}

func TestLoadRelayOverrides(t *testing.T) {
	t.Setenv("RELAY_ADDR", " :9000 ")
	t.Setenv("RELAY_WS_ADDR", ":9001")
	t.Setenv("STATUS_ADDR", ":9002")
	t.Setenv("RELAY_SEND_QUEUE", "8")
	t.Setenv("RELAY_WRITE_TIMEOUT", "3")
	cfg, err := LoadRelay()
	if err != nil {
		t.Fatalf("LoadRelay: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.WSAddr != ":9001" || cfg.StatusAddr != ":9002" {
		t.Fatalf("unexpected addrs %+v", cfg)
	}
	if cfg.SendQueue != 8 || cfg.WriteTimeout != 3*time.Second {
		t.Fatalf("unexpected tuning %+v", cfg)
	}

	t.Setenv("RELAY_SEND_QUEUE", "-1")
	t.Setenv("RELAY_WRITE_TIMEOUT", "250ms")
	cfg, _ = LoadRelay()
	if cfg.SendQueue != 64 || cfg.WriteTimeout != 250*time.Millisecond {
		t.Fatalf("invalid numbers must be ignored: %+v", cfg)
	}
}

func TestLoadRelayRejectsClashingListeners(t *testing.T) {
	t.Setenv("RELAY_ADDR", ":9000")
	t.Setenv("RELAY_WS_ADDR", ":9000")
	if _, err := LoadRelay(); err == nil {
		t.Fatalf("expected error for identical listeners")
	}
	t.Setenv("RELAY_WS_ADDR", "")
	t.Setenv("STATUS_ADDR", ":9000")
	if _, err := LoadRelay(); err == nil {
		t.Fatalf("expected error for status on the relay port")
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("CHECKERS_SERVER", "")
	t.Setenv("CHAT_LOG_FILE", "")
	t.Setenv("CHECKERS_STATUS_URL", "")
	t.Setenv("CHECKERS_LANG", "")
	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Server != "localhost:8888" || cfg.ChatLogFile != "chat_history.txt" || cfg.Lang != "en" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	t.Setenv("CHECKERS_SERVER", "ws://example.org/ws")
	t.Setenv("CHECKERS_STATUS_URL", "http://example.org:8080/")
	t.Setenv("CHECKERS_LANG", "KO")
	cfg, err = LoadClient()
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Server != "ws://example.org/ws" || cfg.StatusURL != "http://example.org:8080" || cfg.Lang != "ko" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}

	t.Setenv("CHECKERS_STATUS_URL", "example.org")
	if _, err := LoadClient(); err == nil {
		t.Fatalf("expected error for non-http status url")
	}
}
