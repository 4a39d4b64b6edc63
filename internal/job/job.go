package job

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ErrManifestNotFound is returned when the manifest file does not exist.
var ErrManifestNotFound = errors.New("manifest not found")

// Descriptor identifies one verification job. It is immutable once loaded.
type Descriptor struct {
	Project string `json:"project"`
	BugID   string `json:"bug_id"`
	Model   string `json:"model"`
}

// Key is the identity of a Descriptor, rendered as project-bugId-model.
type Key string

func (d Descriptor) Key() Key {
	return Key(d.Project + "-" + d.BugID + "-" + d.Model)
}

func (d Descriptor) String() string {
	return string(d.Key())
}

// Manifest is the ordered, de-duplicated job list.
type Manifest struct {
	Jobs []Descriptor
	// Duplicates counts entries dropped because their key was already seen.
	Duplicates int
}

func (m *Manifest) Len() int { return len(m.Jobs) }

// CountByProject returns the number of jobs per project.
func (m *Manifest) CountByProject() map[string]int {
	counts := make(map[string]int)
	for _, d := range m.Jobs {
		counts[d.Project]++
	}
	return counts
}

// LoadManifest reads a manifest file. A missing file yields ErrManifestNotFound.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("opening manifest %s: %w", path, err)
	}
	defer f.Close()
	m, err := ParseManifest(f)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest parses comma-separated project,bugId,model lines. Blank lines,
// lines starting with '#' and lines with a field count other than three are
// skipped. Repeated keys keep their first occurrence.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	seen := make(map[Key]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			continue
		}
		d := Descriptor{
			Project: strings.TrimSpace(parts[0]),
			BugID:   strings.TrimSpace(parts[1]),
			Model:   strings.TrimSpace(parts[2]),
		}
		if seen[d.Key()] {
			m.Duplicates++
			continue
		}
		seen[d.Key()] = true
		m.Jobs = append(m.Jobs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
