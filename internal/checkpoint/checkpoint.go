// Package checkpoint persists batch progress so an interrupted run can
// resume without repeating completed work.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/signalnine/covbatch/internal/job"
)

// ErrCorrupt is returned by Load when the stored checkpoint cannot be trusted.
var ErrCorrupt = errors.New("checkpoint corrupt")

const formatVersion = 1

// State is the progress of one batch. A key is never in both sets.
type State struct {
	Completed   map[job.Key]bool
	Failed      map[job.Key]bool
	ResumeIndex int
}

func New() *State {
	return &State{
		Completed: make(map[job.Key]bool),
		Failed:    make(map[job.Key]bool),
	}
}

func (s *State) MarkCompleted(k job.Key) {
	delete(s.Failed, k)
	s.Completed[k] = true
}

func (s *State) MarkFailed(k job.Key) {
	delete(s.Completed, k)
	s.Failed[k] = true
}

// Advance moves ResumeIndex forward to i. It never moves backward.
func (s *State) Advance(i int) {
	if i > s.ResumeIndex {
		s.ResumeIndex = i
	}
}

func (s *State) Reset() {
	*s = *New()
}

func (s *State) IsCompleted(k job.Key) bool { return s.Completed[k] }
func (s *State) IsFailed(k job.Key) bool    { return s.Failed[k] }

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := New()
	for k := range s.Completed {
		c.Completed[k] = true
	}
	for k := range s.Failed {
		c.Failed[k] = true
	}
	c.ResumeIndex = s.ResumeIndex
	return c
}

// fileBody is the checksummed part of the on-disk record. Field names match
// the progress files written by earlier tooling.
type fileBody struct {
	Version   int       `json:"version"`
	Completed []string  `json:"completed"`
	Failed    []string  `json:"failed"`
	LastIndex int       `json:"last_index"`
	UpdatedAt time.Time `json:"updated_at"`
}

type fileRecord struct {
	fileBody
	Checksum string `json:"checksum,omitempty"`
}

func sortedKeys(m map[job.Key]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

func checksum(b fileBody) (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshaling for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Store reads and writes a State at a fixed path.
type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Load returns the stored State, or an empty State when none exists. A
// record that fails to parse or verify yields ErrCorrupt. Unversioned
// records without a checksum are accepted as written by earlier tooling.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	switch {
	case rec.Version == 0 && rec.Checksum == "":
	case rec.Version != formatVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, rec.Version)
	default:
		want, err := checksum(rec.fileBody)
		if err != nil {
			return nil, err
		}
		if rec.Checksum != want {
			return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
		}
	}
	if rec.LastIndex < 0 {
		return nil, fmt.Errorf("%w: negative resume index %d", ErrCorrupt, rec.LastIndex)
	}

	st := New()
	for _, k := range rec.Completed {
		st.Completed[job.Key(k)] = true
	}
	for _, k := range rec.Failed {
		if !st.Completed[job.Key(k)] {
			st.Failed[job.Key(k)] = true
		}
	}
	st.ResumeIndex = rec.LastIndex
	return st, nil
}

// Save atomically replaces the stored State. A crash at any point leaves
// either the previous or the new record on disk.
func (s *Store) Save(st *State) error {
	body := fileBody{
		Version:   formatVersion,
		Completed: sortedKeys(st.Completed),
		Failed:    sortedKeys(st.Failed),
		LastIndex: st.ResumeIndex,
		UpdatedAt: s.now().UTC().Truncate(time.Second),
	}
	sum, err := checksum(body)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fileRecord{fileBody: body, Checksum: sum}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".progress-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming checkpoint: %w", err)
	}
	ok = true
	return nil
}

// Remove deletes the stored checkpoint, if any.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}
