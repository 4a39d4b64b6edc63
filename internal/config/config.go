package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is named; it may be absent.
const DefaultPath = "covbatch.yaml"

type Config struct {
	Manifest   string     `yaml:"manifest" toml:"manifest"`
	TestsDir   string     `yaml:"tests_dir" toml:"tests_dir"`
	Results    Results    `yaml:"results" toml:"results"`
	Checkpoint Checkpoint `yaml:"checkpoint" toml:"checkpoint"`
	Toolchain  Toolchain  `yaml:"toolchain" toml:"toolchain"`
	Adapter    Adapter    `yaml:"adapter" toml:"adapter"`
	Metrics    Metrics    `yaml:"metrics" toml:"metrics"`
	Log        Log        `yaml:"log" toml:"log"`
}

type Results struct {
	Dir string `yaml:"dir" toml:"dir"`
	// Index is files or badger.
	Index string `yaml:"index" toml:"index"`
}

type Checkpoint struct {
	Path       string `yaml:"path" toml:"path"`
	FlushEvery int    `yaml:"flush_every" toml:"flush_every"`
}

type Toolchain struct {
	Home          string   `yaml:"home" toml:"home"`
	WorkspaceBase string   `yaml:"workspace_base" toml:"workspace_base"`
	Commands      Commands `yaml:"commands" toml:"commands"`
}

// Commands override the stage command templates. Empty keeps the built-in.
type Commands struct {
	Checkout    string `yaml:"checkout" toml:"checkout"`
	ExportTests string `yaml:"export_tests" toml:"export_tests"`
	Compile     string `yaml:"compile" toml:"compile"`
	Test        string `yaml:"test" toml:"test"`
	Coverage    string `yaml:"coverage" toml:"coverage"`
}

type Adapter struct {
	// Kind is local, wsl or docker.
	Kind           string  `yaml:"kind" toml:"kind"`
	Shell          string  `yaml:"shell" toml:"shell"`
	EnvFile        string  `yaml:"env_file" toml:"env_file"`
	Image          string  `yaml:"image" toml:"image"`
	Mounts         []Mount `yaml:"mounts" toml:"mounts"`
	TimeoutMinutes int     `yaml:"timeout_minutes" toml:"timeout_minutes"`
}

type Mount struct {
	Source   string `yaml:"source" toml:"source"`
	Target   string `yaml:"target" toml:"target"`
	ReadOnly bool   `yaml:"read_only" toml:"read_only"`
}

type Metrics struct {
	Textfile string `yaml:"textfile" toml:"textfile"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the config at path. YAML is assumed unless the file ends in .toml.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	return finish(&cfg, path)
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return finish(&Config{}, "defaults")
	}
	return Load(path)
}

func finish(cfg *Config, source string) (*Config, error) {
	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", source, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COVBATCH_D4J_HOME"); v != "" {
		cfg.Toolchain.Home = v
	}
	if v := os.Getenv("COVBATCH_RESULTS_DIR"); v != "" {
		cfg.Results.Dir = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Manifest == "" {
		cfg.Manifest = filepath.Join("generated_tests", "successful_tests.txt")
	}
	if cfg.TestsDir == "" {
		cfg.TestsDir = "generated_tests"
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "coverage_results"
	}
	if cfg.Results.Index == "" {
		cfg.Results.Index = "files"
	}
	if cfg.Checkpoint.Path == "" {
		cfg.Checkpoint.Path = filepath.Join(cfg.Results.Dir, "progress.json")
	}
	if cfg.Checkpoint.FlushEvery == 0 {
		cfg.Checkpoint.FlushEvery = 10
	}
	if cfg.Toolchain.Home == "" {
		cfg.Toolchain.Home = "/home/defects4j"
	}
	if cfg.Toolchain.WorkspaceBase == "" {
		cfg.Toolchain.WorkspaceBase = "/tmp/d4j_workspaces"
	}
	if cfg.Adapter.Kind == "" {
		cfg.Adapter.Kind = "local"
	}
	if cfg.Adapter.Shell == "" {
		cfg.Adapter.Shell = "bash"
	}
	if cfg.Adapter.TimeoutMinutes == 0 {
		cfg.Adapter.TimeoutMinutes = 30
	}
}

func validate(cfg *Config) error {
	switch cfg.Results.Index {
	case "files", "badger":
	default:
		return fmt.Errorf("results.index must be files or badger, got %q", cfg.Results.Index)
	}
	if cfg.Checkpoint.FlushEvery < 1 {
		return fmt.Errorf("checkpoint.flush_every must be at least 1")
	}
	if cfg.Adapter.TimeoutMinutes < 0 {
		return fmt.Errorf("adapter.timeout_minutes must not be negative")
	}
	switch cfg.Adapter.Kind {
	case "local", "wsl":
	case "docker":
		if cfg.Adapter.Image == "" {
			return fmt.Errorf("adapter.image is required for the docker adapter")
		}
		for i, m := range cfg.Adapter.Mounts {
			if m.Source == "" || m.Target == "" {
				return fmt.Errorf("adapter.mounts[%d]: source and target are required", i)
			}
		}
	default:
		return fmt.Errorf("adapter.kind must be local, wsl or docker, got %q", cfg.Adapter.Kind)
	}
	return nil
}
