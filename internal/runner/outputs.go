package runner

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// DiscoverOutputs returns <dir>/<basename><ext> for every extension whose
// file exists, in extension order. Files with any other basename are never
// returned, so cases sharing a directory do not contaminate each other.
func DiscoverOutputs(dir, basename string, exts []string) []string {
	var found []string
	for _, ext := range exts {
		p := filepath.Join(dir, basename+ext)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			found = append(found, p)
		}
	}
	return found
}

// ResultSummary is the system size reported in a results file header.
type ResultSummary struct {
	Equations      int `json:"equations" yaml:"equations"`
	SkylineStorage int `json:"skyline_storage" yaml:"skyline_storage"`
}

var resHeaderRe = regexp.MustCompile(`There are\s+(\d+)\s+equations.*skyline storage is\s+(\d+)`)

// ParseResultSummary scans a results file for the system size header. It
// returns nil without error when the file has no such line.
func ParseResultSummary(path string) (*ResultSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := resHeaderRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		neq, err1 := strconv.Atoi(m[1])
		sky, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		return &ResultSummary{Equations: neq, SkylineStorage: sky}, nil
	}
	return nil, sc.Err()
}
