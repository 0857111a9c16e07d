package sweep

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pfemlab/pfemrun/internal/canonical"
	"github.com/pfemlab/pfemrun/internal/inputrec"
)

// Param is one swept input field and its candidate values, in order.
type Param struct {
	Name   string             `json:"name"`
	Path   inputrec.FieldPath `json:"path"`
	Values []string           `json:"values"`
}

// Grid is the ordered list of swept parameters.
type Grid struct {
	Params []Param `json:"params"`
}

// Binding is the value one parameter takes in an assignment.
type Binding struct {
	Name  string
	Path  inputrec.FieldPath
	Value string
}

// Assignment is one grid point. Index is 1-based in enumeration order.
type Assignment struct {
	Index    int
	Bindings []Binding
}

// Values returns the assignment as name -> value.
func (a Assignment) Values() map[string]string {
	m := make(map[string]string, len(a.Bindings))
	for _, b := range a.Bindings {
		m[b.Name] = b.Value
	}
	return m
}

// Validate checks the grid has at least one parameter, unique names and
// paths, and a non-empty list of distinct values per parameter.
func (g Grid) Validate() error {
	if len(g.Params) == 0 {
		return errors.New("grid has no parameters")
	}
	names := map[string]bool{}
	paths := map[inputrec.FieldPath]string{}
	for _, p := range g.Params {
		if p.Name == "" {
			return errors.New("grid parameter without a name")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate grid parameter %q", p.Name)
		}
		names[p.Name] = true
		if other, ok := paths[p.Path]; ok {
			return fmt.Errorf("parameters %q and %q both address %s", other, p.Name, p.Path)
		}
		paths[p.Path] = p.Name
		if len(p.Values) == 0 {
			return fmt.Errorf("grid parameter %q has no values", p.Name)
		}
		seen := make(map[string]bool, len(p.Values))
		for _, v := range p.Values {
			if seen[v] {
				return fmt.Errorf("grid parameter %q repeats value %q", p.Name, v)
			}
			seen[v] = true
		}
	}
	return nil
}

// Size is the number of grid points.
func (g Grid) Size() int {
	if len(g.Params) == 0 {
		return 0
	}
	n := 1
	for _, p := range g.Params {
		n *= len(p.Values)
	}
	return n
}

// Expand enumerates the Cartesian product row-major: the last parameter
// varies fastest. The order depends only on the grid.
func (g Grid) Expand() []Assignment {
	total := g.Size()
	out := make([]Assignment, 0, total)
	for i := 0; i < total; i++ {
		bindings := make([]Binding, len(g.Params))
		rem := i
		for j := len(g.Params) - 1; j >= 0; j-- {
			p := g.Params[j]
			bindings[j] = Binding{Name: p.Name, Path: p.Path, Value: p.Values[rem%len(p.Values)]}
			rem /= len(p.Values)
		}
		out = append(out, Assignment{Index: i + 1, Bindings: bindings})
	}
	return out
}

// RunName is <base>_run<index>, the index zero-padded to the width of the
// grid size so names sort in enumeration order.
func RunName(base string, index, total int) string {
	width := len(strconv.Itoa(total))
	return fmt.Sprintf("%s_run%0*d", base, width, index)
}

// PathResolver maps a parameter name to a configured field path.
type PathResolver func(name string) (string, bool)

// ParseParam parses "name=path:v1,v2" or "name=v1,v2". Without an explicit
// path the name is resolved through resolve.
func ParseParam(spec string, resolve PathResolver) (Param, error) {
	name, rest, ok := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Param{}, fmt.Errorf("invalid parameter %q: want name=[path:]v1,v2", spec)
	}

	pathText := ""
	if head, tail, found := strings.Cut(rest, ":"); found {
		if _, err := inputrec.ParseFieldPath(head); err == nil {
			pathText, rest = head, tail
		}
	}
	p, err := newParam(name, pathText, splitValues(rest), resolve)
	if err != nil {
		return Param{}, err
	}
	return p, nil
}

func splitValues(s string) []string {
	var values []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func newParam(name, pathText string, values []string, resolve PathResolver) (Param, error) {
	if pathText == "" {
		if resolve != nil {
			pathText, _ = resolve(name)
		}
		if pathText == "" {
			return Param{}, fmt.Errorf("parameter %q: no field path given or configured", name)
		}
	}
	path, err := inputrec.ParseFieldPath(pathText)
	if err != nil {
		return Param{}, fmt.Errorf("parameter %q: %w", name, err)
	}
	if len(values) == 0 {
		return Param{}, fmt.Errorf("parameter %q has no values", name)
	}
	return Param{Name: name, Path: path, Values: values}, nil
}

type gridFile struct {
	Params []struct {
		Name   string   `yaml:"name"`
		Path   string   `yaml:"path"`
		Values []string `yaml:"values"`
	} `yaml:"params"`
}

// LoadGrid decodes a YAML grid file:
//
//	params:
//	  - name: E
//	    path: r2.f1
//	    values: [1e5, 1e6]
//
// path may be omitted when resolve knows the name.
func LoadGrid(data []byte, resolve PathResolver) (Grid, error) {
	var f gridFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Grid{}, fmt.Errorf("invalid grid file: %w", err)
	}
	var g Grid
	for _, p := range f.Params {
		param, err := newParam(p.Name, p.Path, p.Values, resolve)
		if err != nil {
			return Grid{}, err
		}
		g.Params = append(g.Params, param)
	}
	return g, g.Validate()
}

// Fingerprint identifies a (base input, grid) pair. Repeating a sweep over
// the same input and grid yields the same fingerprint.
func Fingerprint(baseInput []byte, g Grid) (string, error) {
	params := make([]any, len(g.Params))
	for i, p := range g.Params {
		params[i] = map[string]any{
			"name":   p.Name,
			"path":   p.Path.String(),
			"values": p.Values,
		}
	}
	return canonical.Digest(canonical.DomainSweep, map[string]any{
		"input":  canonical.DigestBytes(canonical.DomainInput, baseInput),
		"params": params,
	})
}
