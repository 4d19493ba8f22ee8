package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koscakluka/ema-voiceloop/internal/config"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgPath, envPaths = "", nil
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceloop.yaml")
	missingEnv := filepath.Join(t.TempDir(), "missing.env")

	out, err := runRoot(t, "--env", missingEnv, "config", "init", path)
	if err != nil {
		t.Fatalf("expected config init to succeed, got %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("expected path in output, got %q", out)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("expected written config to load, got %v", err)
	}
	if cfg.Service.MaxTries != 20 {
		t.Fatalf("expected default max tries, got %d", cfg.Service.MaxTries)
	}

	if _, err := runRoot(t, "--env", missingEnv, "config", "init", path); err == nil {
		t.Fatalf("expected second init without --force to fail")
	}
	if _, err := runRoot(t, "--env", missingEnv, "config", "init", "--force", path); err != nil {
		t.Fatalf("expected --force to overwrite, got %v", err)
	}
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceloop.yaml")
	if err := os.WriteFile(path, []byte("service:\n  max_tries: 4\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	out, err := runRoot(t, "--env", filepath.Join(t.TempDir(), "missing.env"), "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("expected config show to succeed, got %v", err)
	}
	if !strings.Contains(out, "max_tries: 4") || !strings.Contains(out, "engine: deepgram") {
		t.Fatalf("expected merged config, got:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "--env", filepath.Join(t.TempDir(), "missing.env"), "version")
	if err != nil {
		t.Fatalf("expected version to succeed, got %v", err)
	}
	if !strings.HasPrefix(out, "voiceloop dev") {
		t.Fatalf("expected version line, got %q", out)
	}
}
