package bundle

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pfemlab/pfemrun/internal/inputrec"
)

// ReadSite is one occurrence of the record-read marker. Occurrence order
// is record order: the n-th site reads record n of the input.
type ReadSite struct {
	Record    int      `yaml:"record"`
	Line      int      `yaml:"line"`
	Text      string   `yaml:"text"`
	Variables []string `yaml:"variables,omitempty"`
	Condition string   `yaml:"condition,omitempty"` // IF guard on the same statement
	From      int      `yaml:"context_from"`
	To        int      `yaml:"context_to"`
}

// InputRecord is one record of a case input matched to its read site.
type InputRecord struct {
	Record int          `yaml:"record"`
	Line   int          `yaml:"line"` // physical line of the input file
	Raw    string       `yaml:"raw_value"`
	Fields []InputField `yaml:"fields"`
}

// InputField is one field of an InputRecord. Variable is empty when the
// read list does not name the field by position.
type InputField struct {
	Path     string `yaml:"path"`
	Variable string `yaml:"variable,omitempty"`
	Value    string `yaml:"value"`
}

// Schema is the record-to-source mapping of one program, optionally
// applied to one case input.
type Schema struct {
	Program  string        `yaml:"program"`
	Marker   string        `yaml:"marker"`
	Radius   int           `yaml:"context_radius"`
	Reads    []ReadSite    `yaml:"reads"`
	Inputs   []InputRecord `yaml:"inputs,omitempty"`
	Unmapped int           `yaml:"unmapped_records,omitempty"` // input records past the last read site

	lines []string
}

// ExtractSchema locates every line of src matching marker and records a
// context window of radius lines on each side, clipped to the file.
func ExtractSchema(program string, src []byte, marker *regexp.Regexp, radius int) *Schema {
	if radius < 0 {
		radius = 0
	}
	s := &Schema{
		Program: program,
		Marker:  marker.String(),
		Radius:  radius,
		lines:   splitLines(src),
	}
	for i, line := range s.lines {
		loc := marker.FindStringIndex(line)
		if loc == nil {
			continue
		}
		n := i + 1
		vars, cond := parseRead(s.statement(i), loc)
		s.Reads = append(s.Reads, ReadSite{
			Record:    len(s.Reads) + 1,
			Line:      n,
			Text:      strings.TrimSpace(line),
			Variables: vars,
			Condition: cond,
			From:      max(1, n-radius),
			To:        min(len(s.lines), n+radius),
		})
	}
	return s
}

// LoadSchema reads a program source and extracts its schema.
func LoadSchema(program, source, marker string, radius int) (*Schema, error) {
	re, err := regexp.Compile(marker)
	if err != nil {
		return nil, fmt.Errorf("invalid read marker: %w", err)
	}
	src, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	return ExtractSchema(program, src, re, radius), nil
}

// statement joins line i with its '&' continuation lines, comments
// removed.
func (s *Schema) statement(i int) string {
	stmt := stripComment(s.lines[i])
	for strings.HasSuffix(strings.TrimSpace(stmt), "&") && i+1 < len(s.lines) {
		i++
		stmt = strings.TrimSuffix(strings.TrimSpace(stmt), "&")
		next := strings.TrimSpace(stripComment(s.lines[i]))
		stmt += strings.TrimPrefix(next, "&")
	}
	return stmt
}

func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '!':
			return line[:i]
		}
	}
	return line
}

var ifRe = regexp.MustCompile(`(?i)\bIF\s*\(`)

// parseRead splits a read statement into its input list and the condition
// of an IF guarding it. loc is the marker match within stmt.
func parseRead(stmt string, loc []int) ([]string, string) {
	if loc[1] > len(stmt) {
		return nil, "" // marker inside a comment
	}
	cond := ""
	if m := ifRe.FindStringIndex(stmt[:loc[0]]); m != nil {
		if inner, _, ok := balanced(stmt, m[1]); ok {
			cond = strings.TrimSpace(inner)
		}
	}

	matched := stmt[loc[0]:loc[1]]
	depth := strings.Count(matched, "(") - strings.Count(matched, ")")
	rest := stmt[loc[1]:]
	if depth > 0 {
		_, end, ok := balancedFrom(rest, depth)
		if !ok {
			return nil, cond
		}
		rest = rest[end:]
	}
	return splitList(rest), cond
}

// balanced returns the text between the parenthesis opened just before
// start and its matching close, and the index after the close.
func balanced(s string, start int) (string, int, bool) {
	inner, end, ok := balancedFrom(s[start:], 1)
	return inner, start + end, ok
}

func balancedFrom(s string, depth int) (string, int, bool) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[:i], i + 1, true
			}
		}
	}
	return "", 0, false
}

// splitList splits an input list on top-level commas, so an implied-do
// group such as (x(i),i=1,n) stays one item.
func splitList(list string) []string {
	var items []string
	depth, start := 0, 0
	flush := func(end int) {
		if item := strings.TrimSpace(list[start:end]); item != "" {
			items = append(items, item)
		}
	}
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(list))
	return items
}

// named reports whether a read list item addresses exactly one field.
func named(item string) bool {
	return !strings.HasPrefix(item, "(")
}

// MapInput matches the records of a case input to the read sites in
// order. A record's fields are named by position until the first
// implied-do group of its read list.
func (s *Schema) MapInput(data []byte) {
	f := inputrec.Parse(data)
	lines := strings.Split(string(data), "\n")
	s.Inputs, s.Unmapped = nil, 0
	for i, rec := range f.Records {
		if i >= len(s.Reads) {
			s.Unmapped = len(f.Records) - len(s.Reads)
			break
		}
		site := s.Reads[i]
		in := InputRecord{
			Record: i + 1,
			Line:   rec.Line,
			Raw:    strings.TrimSpace(lines[rec.Line-1]),
		}
		naming := true
		for j, fd := range rec.Fields {
			v := ""
			if naming && j < len(site.Variables) {
				if naming = named(site.Variables[j]); naming {
					v = site.Variables[j]
				}
			}
			path := inputrec.FieldPath{Record: i + 1, Field: j + 1}
			in.Fields = append(in.Fields, InputField{Path: path.String(), Variable: v, Value: fd.Text})
		}
		s.Inputs = append(s.Inputs, in)
	}
}

// FieldPaths maps each variable read exactly once, lower-cased, to the
// field it occupies. Variables after an implied-do group in the same read
// are left out, as are variables read by more than one site.
func (s *Schema) FieldPaths() map[string]inputrec.FieldPath {
	paths := map[string]inputrec.FieldPath{}
	repeated := map[string]bool{}
	for _, r := range s.Reads {
		for i, v := range r.Variables {
			if !named(v) {
				break
			}
			name := strings.ToLower(v)
			if _, ok := paths[name]; ok || repeated[name] {
				repeated[name] = true
				delete(paths, name)
				continue
			}
			paths[name] = inputrec.FieldPath{Record: r.Record, Field: i + 1}
		}
	}
	return paths
}

func splitLines(src []byte) []string {
	text := strings.ReplaceAll(string(src), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// NumberedSource renders the whole source with line numbers.
func (s *Schema) NumberedSource() string {
	var b strings.Builder
	for i, line := range s.lines {
		fmt.Fprintf(&b, "%5d  %s\n", i+1, line)
	}
	return b.String()
}

// ReadLines renders one "line:text" entry per read site.
func (s *Schema) ReadLines() string {
	var b strings.Builder
	for _, r := range s.Reads {
		fmt.Fprintf(&b, "%d:%s\n", r.Line, s.lines[r.Line-1])
	}
	return b.String()
}

// ReadContext renders the context window of every read site, marking the
// read line itself with '>'.
func (s *Schema) ReadContext() string {
	var b strings.Builder
	for i, r := range s.Reads {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- record %d (line %d) ---\n", r.Record, r.Line)
		for n := r.From; n <= r.To; n++ {
			mark := " "
			if n == r.Line {
				mark = ">"
			}
			fmt.Fprintf(&b, "%s%5d  %s\n", mark, n, s.lines[n-1])
		}
	}
	return b.String()
}

// InputMap renders the mapped case input, one block per record. It is
// empty until MapInput has been called.
func (s *Schema) InputMap() string {
	var b strings.Builder
	for i, in := range s.Inputs {
		if i > 0 {
			b.WriteString("\n")
		}
		site := s.Reads[in.Record-1]
		fmt.Fprintf(&b, "--- record %d (source line %d, input line %d) ---\n", in.Record, site.Line, in.Line)
		fmt.Fprintf(&b, "%s\n", site.Text)
		if site.Condition != "" {
			fmt.Fprintf(&b, "only if %s\n", site.Condition)
		}
		for _, fd := range in.Fields {
			v := fd.Variable
			if v == "" {
				v = "-"
			}
			fmt.Fprintf(&b, "  %s  %s = %s\n", fd.Path, v, fd.Value)
		}
	}
	if s.Unmapped > 0 {
		fmt.Fprintf(&b, "\n%d input records past the last read\n", s.Unmapped)
	}
	return b.String()
}
