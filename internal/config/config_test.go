package config_test

import (
	"path/filepath"
	"testing"

	"github.com/signalnine/covbatch/internal/config"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := config.Load("../../testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TestsDir != "generated_tests" {
		t.Errorf("expected default tests dir, got %q", cfg.TestsDir)
	}
	if cfg.Results.Dir != "coverage_results" {
		t.Errorf("expected default results dir, got %q", cfg.Results.Dir)
	}
	if want := filepath.Join("coverage_results", "progress.json"); cfg.Checkpoint.Path != want {
		t.Errorf("expected checkpoint %q, got %q", want, cfg.Checkpoint.Path)
	}
	if cfg.Checkpoint.FlushEvery != 10 {
		t.Errorf("expected flush every 10, got %d", cfg.Checkpoint.FlushEvery)
	}
	if cfg.Adapter.Kind != "local" || cfg.Adapter.Shell != "bash" {
		t.Errorf("expected local bash adapter, got %q/%q", cfg.Adapter.Kind, cfg.Adapter.Shell)
	}
	if cfg.Toolchain.Home != "/home/defects4j" {
		t.Errorf("expected default toolchain home, got %q", cfg.Toolchain.Home)
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Results.Index != "badger" {
		t.Errorf("expected badger index, got %q", cfg.Results.Index)
	}
	if want := filepath.Join("runs/coverage", "progress.json"); cfg.Checkpoint.Path != want {
		t.Errorf("expected checkpoint under results dir, got %q", cfg.Checkpoint.Path)
	}
	if cfg.Checkpoint.FlushEvery != 5 {
		t.Errorf("expected flush every 5, got %d", cfg.Checkpoint.FlushEvery)
	}
	if cfg.Toolchain.Commands.Test == "" || cfg.Toolchain.Commands.Compile != "" {
		t.Errorf("expected only the test command overridden, got %+v", cfg.Toolchain.Commands)
	}
	if len(cfg.Adapter.Mounts) != 2 || !cfg.Adapter.Mounts[1].ReadOnly {
		t.Errorf("expected two mounts with a read-only toolchain, got %+v", cfg.Adapter.Mounts)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json logs, got %q", cfg.Log.Format)
	}
}

func TestLoadTOML(t *testing.T) {
	cfg, err := config.Load("../../testdata/full.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Kind != "wsl" {
		t.Errorf("expected wsl adapter, got %q", cfg.Adapter.Kind)
	}
	if cfg.Adapter.TimeoutMinutes != 10 {
		t.Errorf("expected 10 minute timeout, got %d", cfg.Adapter.TimeoutMinutes)
	}
	if cfg.Toolchain.Home != "/opt/defects4j" {
		t.Errorf("expected toolchain home from file, got %q", cfg.Toolchain.Home)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := config.Load("nonexistent.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "covbatch.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.Manifest != filepath.Join("generated_tests", "successful_tests.txt") {
		t.Errorf("expected default manifest, got %q", cfg.Manifest)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COVBATCH_D4J_HOME", "/env/d4j")
	t.Setenv("COVBATCH_RESULTS_DIR", "/env/results")
	cfg, err := config.Load("../../testdata/full.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Toolchain.Home != "/env/d4j" {
		t.Errorf("expected env toolchain home, got %q", cfg.Toolchain.Home)
	}
	if cfg.Results.Dir != "/env/results" {
		t.Errorf("expected env results dir, got %q", cfg.Results.Dir)
	}
	if cfg.Checkpoint.Path != filepath.Join("/env/results", "progress.json") {
		t.Errorf("expected checkpoint to follow results dir, got %q", cfg.Checkpoint.Path)
	}
}

func TestValidateRejectsUnknownAdapter(t *testing.T) {
	if _, err := config.Load("../../testdata/bad_kind.yaml"); err == nil {
		t.Error("expected error for unknown adapter kind")
	}
}
