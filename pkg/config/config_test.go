package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Inbox string `yaml:"inbox"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("FRAMEGRAB_TEST_INBOX", "/data/in")
	p := writeConfig(t, "port: 9000\ninbox: ${FRAMEGRAB_TEST_INBOX}\n")

	cfg := sample{Name: "default", Port: 1}
	if err := Load(p, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 || cfg.Inbox != "/data/in" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Name != "default" {
		t.Errorf("default overwritten: %q", cfg.Name)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	p := writeConfig(t, "port: 0\n")
	cfg := sample{Port: 1}
	err := Load(p, &cfg)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := writeConfig(t, "port: [\n")
	if err := Load(p, &sample{Port: 1}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg := sample{Port: 8080}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if found || cfg.Port != 8080 {
		t.Errorf("found = %v, cfg = %+v", found, cfg)
	}
}

func TestLoadOptional_MissingFileStillValidated(t *testing.T) {
	if _, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &sample{}); err == nil {
		t.Fatal("expected validation error for invalid defaults")
	}
}

func TestLoadOptional_ReadsFile(t *testing.T) {
	p := writeConfig(t, "port: 7000\n")
	cfg := sample{Port: 1}
	found, err := LoadOptional(p, &cfg)
	if err != nil || !found || cfg.Port != 7000 {
		t.Fatalf("found = %v, err = %v, cfg = %+v", found, err, cfg)
	}
}
