package modgraph

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Unit is one compilation unit of the shared library.
type Unit struct {
	// Name is the path relative to the library root, slash separated.
	Name string
	Path string

	Provides []string // interfaces declared, lower case
	Requires []string // interfaces used, lower case, intrinsic uses excluded
}

// ObjectName is the unit's object file name, unique within the library.
func (u *Unit) ObjectName() string {
	stem := strings.TrimSuffix(u.Name, filepath.Ext(u.Name))
	return strings.ReplaceAll(stem, "/", "_") + ".o"
}

var (
	moduleRe = regexp.MustCompile(`(?i)^\s*module\s+([a-z_]\w*)\s*(?:!.*)?$`)
	useRe    = regexp.MustCompile(`(?i)^\s*use\b\s*(,\s*(?:non_)?intrinsic\s*)?(?:::)?\s*([a-z_]\w*)`)
)

// ParseUnit extracts the provided and required interfaces from source text.
func ParseUnit(src []byte) (provides, requires []string) {
	seenP := map[string]bool{}
	seenR := map[string]bool{}

	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := moduleRe.FindStringSubmatch(line); m != nil {
			name := strings.ToLower(m[1])
			if name == "procedure" || seenP[name] {
				continue
			}
			seenP[name] = true
			provides = append(provides, name)
			continue
		}
		if m := useRe.FindStringSubmatch(line); m != nil {
			if attr := strings.ToLower(m[1]); strings.Contains(attr, "intrinsic") && !strings.Contains(attr, "non_intrinsic") {
				continue
			}
			name := strings.ToLower(m[2])
			if seenR[name] {
				continue
			}
			seenR[name] = true
			requires = append(requires, name)
		}
	}
	return provides, requires
}

// Scan walks dir for files with one of exts and parses each into a Unit.
// Units are returned sorted by Name.
func Scan(dir string, exts []string) ([]*Unit, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, &PreconditionError{What: "library directory", Path: dir}
	}

	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}

	var units []*Unit
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !want[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		provides, requires := ParseUnit(src)
		units = append(units, &Unit{
			Name:     filepath.ToSlash(rel),
			Path:     path,
			Provides: provides,
			Requires: requires,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan library %s: %w", dir, err)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

// Declare merges declared requirements into units. Keys match a unit's Name
// or its base file name.
func Declare(units []*Unit, declared map[string][]string) {
	if len(declared) == 0 {
		return
	}
	for _, u := range units {
		extra := append([]string(nil), declared[u.Name]...)
		if base := filepath.Base(u.Name); base != u.Name {
			extra = append(extra, declared[base]...)
		}
		for _, iface := range extra {
			iface = strings.ToLower(iface)
			if !contains(u.Requires, iface) {
				u.Requires = append(u.Requires, iface)
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
