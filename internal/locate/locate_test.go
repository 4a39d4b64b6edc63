package locate_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/locate"
)

func writeTest(t *testing.T, testsDir string, d job.Descriptor, name, body string) {
	t.Helper()
	dir := locate.Dir(testsDir, d)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFind(t *testing.T) {
	testsDir := t.TempDir()
	d := job.Descriptor{Project: "Jsoup", BugID: "3", Model: "qwen"}
	writeTest(t, testsDir, d, "TextNodeTest.java", `package org.jsoup.nodes;

import org.junit.Test;

public class TextNodeTest extends ParentTest {
    @Test public void splitText() {}
}
`)
	got, err := locate.Find(testsDir, d)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.ClassName != "TextNodeTest" {
		t.Errorf("class: got %q, want TextNodeTest", got.ClassName)
	}
	if got.QualifiedName() != "org.jsoup.nodes.TextNodeTest" {
		t.Errorf("qualified: got %q", got.QualifiedName())
	}
	if got.PackageDir() != "org/jsoup/nodes" {
		t.Errorf("package dir: got %q", got.PackageDir())
	}
}

func TestFindDefaultPackage(t *testing.T) {
	testsDir := t.TempDir()
	d := job.Descriptor{Project: "Math", BugID: "5", Model: "deepseek"}
	writeTest(t, testsDir, d, "ComplexTest.java", "public final class ComplexTest{\n}\n")
	got, err := locate.Find(testsDir, d)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.QualifiedName() != "ComplexTest" || got.PackageDir() != "" {
		t.Errorf("got %+v", got)
	}
}

func TestFindMissing(t *testing.T) {
	tests := []struct {
		name  string
		setup func(dir string, d job.Descriptor)
	}{
		{"no directory", func(string, job.Descriptor) {}},
		{"no test file", func(dir string, d job.Descriptor) {
			writeTest(t, dir, d, "Helper.java", "public class Helper {}")
		}},
		{"no public class", func(dir string, d job.Descriptor) {
			writeTest(t, dir, d, "FooTest.java", "class FooTest {}")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			d := job.Descriptor{Project: "Lang", BugID: "1", Model: "qwen"}
			tt.setup(dir, d)
			_, err := locate.Find(dir, d)
			if !errors.Is(err, locate.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}
