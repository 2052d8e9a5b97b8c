// Package rscfile discovers RouterOS script sources on disk and decodes them
// into upload items.
package rscfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const DefaultExt = ".rsc"

var (
	ErrNoSources = errors.New("rscfile: no script sources found")
	ErrNotFound  = errors.New("rscfile: module not found")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Source is one script file.
type Source struct {
	Name    string
	Path    string
	Size    int64
	Content string
}

// ScriptName maps a file name to its script name by dropping the extension.
func ScriptName(path, ext string) string {
	base := filepath.Base(path)
	if ext == "" {
		ext = DefaultExt
	}
	if strings.EqualFold(filepath.Ext(base), ext) {
		return base[:len(base)-len(ext)]
	}
	return base
}

// Discover lists every file with ext directly under dir, sorted by name.
func Discover(dir, ext string) ([]string, error) {
	if ext == "" {
		ext = DefaultExt
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Resolve maps module names, with or without the extension, to paths under
// dir. An empty list selects every source in dir.
func Resolve(dir, ext string, modules []string) ([]string, error) {
	if ext == "" {
		ext = DefaultExt
	}
	if len(modules) == 0 {
		paths, err := Discover(dir, ext)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("%w in %s", ErrNoSources, dir)
		}
		return paths, nil
	}
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		name := strings.TrimSpace(m)
		if !strings.EqualFold(filepath.Ext(name), ext) {
			name += ext
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, m, err)
		}
		out = append(out, path)
	}
	return out, nil
}

// Load reads and decodes one source file.
func Load(path, ext string) (Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Source{}, err
	}
	return Source{
		Name:    ScriptName(path, ext),
		Path:    path,
		Size:    int64(len(raw)),
		Content: Decode(raw),
	}, nil
}

// LoadAll loads paths in order.
func LoadAll(paths []string, ext string) ([]Source, error) {
	out := make([]Source, 0, len(paths))
	for _, p := range paths {
		src, err := Load(p, ext)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// Decode returns raw as UTF-8 with any BOM stripped. Input that is not valid
// UTF-8 is treated as windows-1251, the usual encoding of hand-edited
// RouterOS exports.
func Decode(raw []byte) string {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, err := charmap.Windows1251.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	return string(out)
}
