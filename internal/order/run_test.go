package order

import (
	"errors"
	"path/filepath"
	"testing"

	xerrors "restaurant-system/internal/xpkg/errors"
)

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"--port", "8080", "--max-concurrent", "7"})
	if err != nil {
		t.Fatal(err)
	}
	if p.orderParams.Port != 8080 || p.orderParams.MaxConcurrent != 7 || p.configPath != "config.yaml" {
		t.Fatalf("params = %+v %+v", p, p.orderParams)
	}

	if _, err := parseParams([]string{"--help"}); !errors.Is(err, xerrors.ErrHelp) {
		t.Fatalf("help err = %v", err)
	}
	if _, err := parseParams([]string{"--port", "x"}); !errors.Is(err, xerrors.ErrParseCmd) {
		t.Fatalf("bad flag err = %v", err)
	}
}

func TestValidateParams(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yaml")

	p, _ := parseParams([]string{"--port", "0", "--config-path", missing})
	if err := validateParams(p); err == nil {
		t.Fatal("port 0 accepted")
	}

	p, _ = parseParams([]string{"--max-concurrent", "0", "--config-path", missing})
	if err := validateParams(p); err == nil {
		t.Fatal("max-concurrent 0 accepted")
	}

	t.Setenv("JWT_SECRET", "")
	p, _ = parseParams([]string{"--config-path", missing})
	if err := validateParams(p); err == nil {
		t.Fatal("missing jwt secret accepted")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	p, _ = parseParams([]string{"--config-path", missing})
	if err := validateParams(p); err != nil {
		t.Fatalf("validateParams: %v", err)
	}
	if p.cfg.Auth.JWTSecret != "s3cret" {
		t.Fatal("config not loaded")
	}
}
