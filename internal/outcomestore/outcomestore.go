// Package outcomestore indexes the latest Outcome per job key. The index is
// the historical input merged with the current run's outcomes at report time.
package outcomestore

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/result"
)

// Store records Outcomes with last-write-wins semantics per key.
type Store interface {
	Put(o *result.Outcome) error
	// Get returns nil, nil when no Outcome is stored for d.
	Get(d job.Descriptor) (*result.Outcome, error)
	All() ([]*result.Outcome, error)
	Close() error
}

const (
	KindFiles  = "files"
	KindBadger = "badger"
)

// indexDirName is the badger directory inside the results dir.
const indexDirName = ".index"

// Open returns the Store of the given kind rooted at resultsDir.
func Open(kind, resultsDir string, logger *slog.Logger) (Store, error) {
	switch kind {
	case "", KindFiles:
		return &result.FileStore{Dir: resultsDir}, nil
	case KindBadger:
		cfg := DefaultConfig()
		cfg.Path = filepath.Join(resultsDir, indexDirName)
		cfg.Logger = logger
		return OpenBadger(cfg)
	default:
		return nil, fmt.Errorf("unknown outcome index %q", kind)
	}
}

var errNoPath = errors.New("path is required for persistent index")
