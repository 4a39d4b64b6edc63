package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/covbatch/internal/job"
)

const (
	metaFileName     = "metadata.json"
	CoverageFileName = "coverage.xml"
)

// KeyDir is the result-storage directory for one job key.
func KeyDir(resultsDir string, d job.Descriptor) string {
	return filepath.Join(resultsDir, d.Project, d.BugID, d.Model)
}

// WriteOutcome stores o as metadata.json under dir, replacing any prior copy.
func WriteOutcome(dir string, o *Outcome) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating result dir: %w", err)
	}
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, metaFileName), data, 0o644)
}

func ReadOutcome(path string) (*Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading outcome: %w", err)
	}
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing outcome: %w", err)
	}
	return &o, nil
}

// CollectOutcomes walks resultsDir and returns every stored Outcome.
// Unreadable metadata files are skipped.
func CollectOutcomes(resultsDir string) ([]*Outcome, error) {
	var outcomes []*Outcome
	err := filepath.Walk(resultsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == resultsDir {
				return filepath.SkipDir
			}
			return err
		}
		if info.Name() == metaFileName {
			o, err := ReadOutcome(path)
			if err != nil {
				return nil
			}
			outcomes = append(outcomes, o)
		}
		return nil
	})
	return outcomes, err
}

// FileStore is an Outcome index backed by the per-key metadata files.
type FileStore struct {
	Dir string
}

func (s *FileStore) Put(o *Outcome) error {
	return WriteOutcome(KeyDir(s.Dir, o.Descriptor), o)
}

func (s *FileStore) Get(d job.Descriptor) (*Outcome, error) {
	path := filepath.Join(KeyDir(s.Dir, d), metaFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return ReadOutcome(path)
}

func (s *FileStore) All() ([]*Outcome, error) {
	return CollectOutcomes(s.Dir)
}

func (s *FileStore) Close() error { return nil }
