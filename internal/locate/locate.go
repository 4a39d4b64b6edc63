// Package locate finds the generated test file for a job and reads its
// declared class.
package locate

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/signalnine/covbatch/internal/job"
)

var ErrNotFound = errors.New("generated test not found")

var (
	classPattern   = regexp.MustCompile(`^public\s+(?:(?:final|abstract)\s+)*class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	packagePattern = regexp.MustCompile(`^package\s+([A-Za-z_][A-Za-z0-9_.]*)\s*;`)
)

// Test is a located generated test file.
type Test struct {
	Path      string
	ClassName string
	// Package is empty for tests in the default package.
	Package string
}

// QualifiedName is the fully qualified class name.
func (t *Test) QualifiedName() string {
	if t.Package == "" {
		return t.ClassName
	}
	return t.Package + "." + t.ClassName
}

// PackageDir is the package path relative to a source root.
func (t *Test) PackageDir() string {
	return strings.ReplaceAll(t.Package, ".", "/")
}

// Dir is the directory holding generated tests for d.
func Dir(testsDir string, d job.Descriptor) string {
	return filepath.Join(testsDir, d.Project, d.BugID, d.Model)
}

// Find returns the first *Test.java file for d and its declared class.
func Find(testsDir string, d job.Descriptor) (*Test, error) {
	dir := Dir(testsDir, d)
	matches, err := filepath.Glob(filepath.Join(dir, "*Test.java"))
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no *Test.java in %s", ErrNotFound, dir)
	}
	path := matches[0]
	class, pkg, err := declaredClass(path)
	if err != nil {
		return nil, err
	}
	if class == "" {
		return nil, fmt.Errorf("%w: no public class declared in %s", ErrNotFound, path)
	}
	return &Test{Path: path, ClassName: class, Package: pkg}, nil
}

func declaredClass(path string) (class, pkg string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if pkg == "" {
			if m := packagePattern.FindStringSubmatch(line); m != nil {
				pkg = m[1]
				continue
			}
		}
		if m := classPattern.FindStringSubmatch(line); m != nil {
			return m[1], pkg, nil
		}
	}
	return "", pkg, sc.Err()
}
