package rscfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/rosctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDiscoverAndResolve(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	writeFile(t, dir, "Nasos-Main.rsc", []byte(":log info main"))
	writeFile(t, dir, "Alpha.RSC", []byte(":log info a"))
	writeFile(t, dir, "notes.txt", []byte("skip"))
	if err := os.Mkdir(filepath.Join(dir, "sub.rsc"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	paths, err := Discover(dir, "")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "Alpha.RSC" || filepath.Base(paths[1]) != "Nasos-Main.rsc" {
		t.Fatalf("unexpected paths=%v", paths)
	}

	paths, err = Resolve(dir, "", []string{"Nasos-Main", "Nasos-Main.rsc"})
	if err != nil || len(paths) != 2 || paths[0] != paths[1] {
		t.Fatalf("unexpected resolve paths=%v err=%v", paths, err)
	}
	if _, err := Resolve(dir, "", []string{"Missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := Resolve(t.TempDir(), "", nil); !errors.Is(err, ErrNoSources) {
		t.Fatalf("expected no sources, got %v", err)
	}
}

func TestScriptName(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"/a/b/Nasos-Main.rsc": "Nasos-Main",
		"Alpha.RSC":           "Alpha",
		"x.tar.rsc":           "x.tar",
		"plain":               "plain",
	}
	for in, want := range cases {
		if got := ScriptName(in, ""); got != want {
			t.Fatalf("ScriptName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestDecode(t *testing.T) {
	testlog.Start(t)
	if got := Decode(append([]byte{0xEF, 0xBB, 0xBF}, []byte(":put \"ok\"")...)); got != ":put \"ok\"" {
		t.Fatalf("bom not stripped: %q", got)
	}
	if got := Decode([]byte(":log info \"привет\"")); got != ":log info \"привет\"" {
		t.Fatalf("utf-8 changed: %q", got)
	}
	cp1251 := []byte{':', 'p', 'u', 't', ' ', 0xCF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}
	if got := Decode(cp1251); got != ":put Привет" {
		t.Fatalf("windows-1251 fallback failed: %q", got)
	}
}

func TestLoadAll(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "A.rsc", []byte("a\r\n"))
	b := writeFile(t, dir, "B.rsc", []byte("bb"))
	srcs, err := LoadAll([]string{a, b}, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(srcs) != 2 || srcs[0].Name != "A" || srcs[0].Content != "a\r\n" || srcs[1].Size != 2 {
		t.Fatalf("unexpected sources=%+v", srcs)
	}
	if _, err := Load(filepath.Join(dir, "missing.rsc"), ""); err == nil {
		t.Fatalf("expected missing file error")
	}
}
