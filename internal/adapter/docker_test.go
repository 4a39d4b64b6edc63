package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMapThroughMounts(t *testing.T) {
	mounts := []Mount{
		{Source: "/home/me/work/results", Target: "/results"},
		{Source: "/home/me/work", Target: "/work/"},
	}
	tests := []struct {
		in   string
		want string
	}{
		{"/home/me/work/results/Jsoup/3/qwen", "/results/Jsoup/3/qwen"},
		{"/home/me/work/generated_tests/A.java", "/work/generated_tests/A.java"},
		{"/home/me/work", "/work/"},
		{"/elsewhere/file", "/elsewhere/file"},
	}
	for _, tt := range tests {
		if got := mapThroughMounts(mounts, tt.in); got != tt.want {
			t.Errorf("mapThroughMounts(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDockerExecute(t *testing.T) {
	if os.Getenv("COVBATCH_DOCKER_TESTS") == "" {
		t.Skip("set COVBATCH_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	workDir := t.TempDir()
	d, err := NewDocker(DockerOpts{
		Image:   "alpine:latest",
		Shell:   "sh",
		Mounts:  []Mount{{Source: workDir, Target: "/workspace"}},
		Timeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewDocker: %v", err)
	}
	defer d.Close()

	target := d.ExecPath(filepath.Join(workDir, "out.txt"))
	res, err := d.Execute(ctx, "echo hello > "+target+"; exit 2")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitStatus != 2 {
		t.Errorf("exit: got %d, want 2", res.ExitStatus)
	}
	content, err := os.ReadFile(filepath.Join(workDir, "out.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(content) != "hello\n" {
		t.Errorf("output: got %q", content)
	}
}
