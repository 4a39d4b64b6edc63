package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/signalnine/covbatch/internal/adapter"
	"github.com/signalnine/covbatch/internal/config"
)

// newAdapter builds the configured execution adapter. The returned close
// function releases it.
func newAdapter(cfg *config.Config, logger *slog.Logger) (adapter.Adapter, func() error, error) {
	var env []string
	if cfg.Adapter.EnvFile != "" {
		var err error
		env, err = adapter.ParseEnvFile(cfg.Adapter.EnvFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading adapter env: %w", err)
		}
	}
	timeout := time.Duration(cfg.Adapter.TimeoutMinutes) * time.Minute
	noop := func() error { return nil }

	switch cfg.Adapter.Kind {
	case "wsl":
		sh := adapter.NewWSL(env, timeout, logger)
		sh.Shell = cfg.Adapter.Shell
		return sh, noop, nil
	case "docker":
		var mounts []adapter.Mount
		for _, m := range cfg.Adapter.Mounts {
			mounts = append(mounts, adapter.Mount{Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
		}
		d, err := adapter.NewDocker(adapter.DockerOpts{
			Image:   cfg.Adapter.Image,
			Shell:   cfg.Adapter.Shell,
			Env:     env,
			Mounts:  mounts,
			Timeout: timeout,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	default:
		sh := adapter.NewLocal(env, timeout, logger)
		sh.Shell = cfg.Adapter.Shell
		return sh, noop, nil
	}
}
