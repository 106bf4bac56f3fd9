package configparser

import (
	"testing"
	"time"
)

type nested struct {
	Host    string        `env:"PARSETEST_HOST" default:"localhost"`
	Port    int           `env:"PARSETEST_PORT" default:"5432"`
	Timeout time.Duration `env:"PARSETEST_TIMEOUT" default:"15s"`
	Debug   bool          `env:"PARSETEST_DEBUG" default:"true"`
}

type testConfig struct {
	Nested nested
	Name   string `env:"PARSETEST_NAME" default:"dispatch"`
}

func TestParseEnv_Defaults(t *testing.T) {
	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Name != "dispatch" {
		t.Fatalf("Name = %q, want default", cfg.Name)
	}
	if cfg.Nested.Host != "localhost" || cfg.Nested.Port != 5432 {
		t.Fatalf("nested defaults not applied: %+v", cfg.Nested)
	}
	if cfg.Nested.Timeout != 15*time.Second {
		t.Fatalf("Timeout = %v, want 15s", cfg.Nested.Timeout)
	}
	if !cfg.Nested.Debug {
		t.Fatal("Debug default not applied")
	}
}

func TestParseEnv_EnvironmentWins(t *testing.T) {
	t.Setenv("PARSETEST_HOST", "db.internal")
	t.Setenv("PARSETEST_PORT", "6432")
	t.Setenv("PARSETEST_TIMEOUT", "250ms")

	var cfg testConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Nested.Host != "db.internal" {
		t.Fatalf("Host = %q, want env value", cfg.Nested.Host)
	}
	if cfg.Nested.Port != 6432 {
		t.Fatalf("Port = %d, want env value", cfg.Nested.Port)
	}
	if cfg.Nested.Timeout != 250*time.Millisecond {
		t.Fatalf("Timeout = %v, want 250ms", cfg.Nested.Timeout)
	}
}

func TestParseEnv_RejectsNonPointer(t *testing.T) {
	var cfg testConfig
	if err := ParseEnv(cfg); err == nil {
		t.Fatal("expected error for non-pointer argument")
	}
}

func TestParseEnv_BadValue(t *testing.T) {
	t.Setenv("PARSETEST_PORT", "not-a-number")

	var cfg testConfig
	if err := ParseEnv(&cfg); err == nil {
		t.Fatal("expected error for unparsable int")
	}
}
