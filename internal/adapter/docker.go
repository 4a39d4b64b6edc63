package adapter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// Mount binds a controller directory into the toolchain container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

type DockerOpts struct {
	Image   string
	Shell   string
	Env     []string
	Mounts  []Mount
	Timeout time.Duration
	UserID  string
	Logger  *slog.Logger
}

// Docker runs each command in a fresh container of the toolchain image.
// Workspaces must live on a mounted path to survive between commands.
// The container runs with a TTY, so stderr is merged into Stdout.
type Docker struct {
	cli    *client.Client
	opts   DockerOpts
	mounts []Mount
}

func NewDocker(opts DockerOpts) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if opts.Shell == "" {
		opts.Shell = "bash"
	}
	mounts := make([]Mount, 0, len(opts.Mounts))
	for _, m := range opts.Mounts {
		abs, err := filepath.Abs(m.Source)
		if err != nil {
			cli.Close()
			return nil, fmt.Errorf("resolving mount %s: %w", m.Source, err)
		}
		m.Source = abs
		mounts = append(mounts, m)
	}
	// Longest source first so nested mounts win in ExecPath.
	sort.SliceStable(mounts, func(i, j int) bool {
		return len(mounts[i].Source) > len(mounts[j].Source)
	})
	return &Docker{cli: cli, opts: opts, mounts: mounts}, nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}

func (d *Docker) ExecPath(hostPath string) string {
	return mapThroughMounts(d.mounts, hostPath)
}

func mapThroughMounts(mounts []Mount, hostPath string) string {
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		abs = hostPath
	}
	for _, m := range mounts {
		if abs == m.Source {
			return m.Target
		}
		prefix := m.Source + string(filepath.Separator)
		if strings.HasPrefix(abs, prefix) {
			rel := filepath.ToSlash(strings.TrimPrefix(abs, prefix))
			return strings.TrimSuffix(m.Target, "/") + "/" + rel
		}
	}
	return filepath.ToSlash(hostPath)
}

func (d *Docker) Execute(ctx context.Context, command string) (*Result, error) {
	mounts := make([]mount.Mount, 0, len(d.mounts))
	for _, m := range d.mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: mounts,
		Init:   &initTrue,
	}
	containerCfg := &container.Config{
		Image:  d.opts.Image,
		Cmd:    []string{d.opts.Shell, "-c", command},
		Env:    d.opts.Env,
		Tty:    true,
		Labels: map[string]string{"covbatch": "true"},
	}
	if d.opts.UserID != "" {
		containerCfg.User = d.opts.UserID
	}

	if d.opts.Logger != nil {
		d.opts.Logger.Debug("docker exec", "image", d.opts.Image, "command", command)
	}

	createResp, err := d.cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		d.cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := d.cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	waitCtx := ctx
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	waitResult := d.cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	errCh := waitResult.Error
	for {
		select {
		case err := <-errCh:
			if err == nil {
				errCh = nil
				continue
			}
			d.cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
			if waitCtx.Err() != context.DeadlineExceeded {
				return nil, fmt.Errorf("waiting for container: %w", err)
			}
			return &Result{
				ExitStatus: TimeoutExitStatus,
				Stdout:     d.logs(containerID),
				TimedOut:   true,
				Duration:   time.Since(start),
			}, nil
		case status := <-waitResult.Result:
			return &Result{
				ExitStatus: int(status.StatusCode),
				Stdout:     d.logs(containerID),
				Duration:   time.Since(start),
			}, nil
		}
	}
}

func (d *Docker) logs(containerID string) string {
	logReader, _ := d.cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if logReader == nil {
		return ""
	}
	defer logReader.Close()
	data, _ := io.ReadAll(logReader)
	return string(data)
}
