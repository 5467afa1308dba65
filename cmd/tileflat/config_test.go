package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, rest, err := loadConfig([]string{"--env", ""})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %v, want none", rest)
	}
	if cfg.Scene != "scene.json" {
		t.Errorf("Scene = %q, want scene.json", cfg.Scene)
	}
	if !cfg.Save || !cfg.Shadows {
		t.Errorf("Save, Shadows = %v, %v, want true, true", cfg.Save, cfg.Shadows)
	}
	if cfg.Options.PPI != 100 || cfg.Options.Format != "png" || !cfg.Options.Chunk.Auto {
		t.Errorf("Options = %+v, want defaults", cfg.Options)
	}
	if cfg.Options.Thresholds.HardMax != 4000 {
		t.Errorf("HardMax = %d, want 4000", cfg.Options.Thresholds.HardMax)
	}
	if cfg.Window.Width != 1280 || cfg.Assets.Root != "assets" {
		t.Errorf("Window.Width, Assets.Root = %d, %q", cfg.Window.Width, cfg.Assets.Root)
	}
}

func TestLoadConfigSources(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tileflat.yaml")
	yaml := `
scene: maps/town.json
options:
  ppi: 200
  format: jpeg
  chunk:
    pixel_size: 1024
log:
  level: debug
`
	if err := os.WriteFile(file, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	env := filepath.Join(dir, ".env")
	if err := os.WriteFile(env, []byte("TILEFLAT_ASSETS_ROOT=/srv/assets\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TILEFLAT_OPTIONS_QUALITY", "0.5")
	// godotenv never overrides a set variable; Setenv only registers the
	// cleanup.
	t.Setenv("TILEFLAT_ASSETS_ROOT", "")
	os.Unsetenv("TILEFLAT_ASSETS_ROOT")

	cfg, rest, err := loadConfig([]string{"--config", file, "--env", env, "--ppi", "300", "a", "b"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Scene != "maps/town.json" {
		t.Errorf("Scene = %q, want the config file value", cfg.Scene)
	}
	if cfg.Options.PPI != 300 {
		t.Errorf("PPI = %v, want the flag value 300", cfg.Options.PPI)
	}
	if cfg.Options.Format != "jpeg" || cfg.Options.Chunk.PixelSize != 1024 {
		t.Errorf("Format, PixelSize = %q, %d", cfg.Options.Format, cfg.Options.Chunk.PixelSize)
	}
	if cfg.Options.Quality != 0.5 {
		t.Errorf("Quality = %v, want the environment value 0.5", cfg.Options.Quality)
	}
	if cfg.Assets.Root != "/srv/assets" {
		t.Errorf("Assets.Root = %q, want the .env value", cfg.Assets.Root)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if len(rest) != 2 || rest[0] != "a" || rest[1] != "b" {
		t.Errorf("rest = %v, want [a b]", rest)
	}
}

func TestLoadConfigRejectsInvalidOptions(t *testing.T) {
	if _, _, err := loadConfig([]string{"--env", "", "--ppi", "5"}); err == nil {
		t.Error("loadConfig accepted ppi 5")
	}
	if _, _, err := loadConfig([]string{"--env", "", "--config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("loadConfig accepted a missing explicit config file")
	}
}

func TestNewLogger(t *testing.T) {
	l, closer, err := newLogger(logConfig{Level: "warn", File: filepath.Join(t.TempDir(), "tileflat.log"), MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closer.Close()
	if l.GetLevel().String() != "warning" {
		t.Errorf("level = %v, want warning", l.GetLevel())
	}
	if _, _, err := newLogger(logConfig{Level: "loud"}); err == nil {
		t.Error("newLogger accepted an unknown level")
	}
}
