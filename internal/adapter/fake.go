package adapter

import (
	"context"
	"sync"
)

// Fake is an in-memory Adapter for tests. Handler decides each command's
// result; a nil Handler succeeds with empty output.
type Fake struct {
	Handler func(command string) (*Result, error)
	Mapper  func(string) string

	mu    sync.Mutex
	calls []string
}

func (f *Fake) Execute(ctx context.Context, command string) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()
	if f.Handler == nil {
		return &Result{}, nil
	}
	return f.Handler(command)
}

func (f *Fake) ExecPath(hostPath string) string {
	if f.Mapper != nil {
		return f.Mapper(hostPath)
	}
	return hostPath
}

// Calls returns a copy of the commands executed so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
