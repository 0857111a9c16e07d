// Package inputrec addresses fields inside a line-oriented program input.
//
// A record is one line that is neither blank nor a comment (first
// non-blank character '!'). Records are numbered from 1 over such lines
// only. Within a record, fields are separated by whitespace or commas; a
// quoted string ('...' or "...", with a doubled quote standing for the
// quote character itself) is one field.
// Every field keeps its byte span, so replacing one field leaves every
// other byte of the file untouched.
package inputrec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Field is one token of a record.
type Field struct {
	Text  string
	Start int // byte offset in the file
	End   int
}

// Record is one non-blank, non-comment line.
type Record struct {
	Line   int // 1-based physical line
	Fields []Field
}

// File is a parsed input file.
type File struct {
	data    []byte
	Records []Record
}

// Parse splits data into records and fields.
func Parse(data []byte) *File {
	f := &File{data: append([]byte(nil), data...)}
	line := 0
	for start := 0; start < len(data); {
		line++
		end := start
		for end < len(data) && data[end] != '\n' {
			end++
		}
		if fields := splitFields(data, start, end); len(fields) > 0 && fields[0].Text[0] != '!' {
			f.Records = append(f.Records, Record{Line: line, Fields: fields})
		}
		start = end + 1
	}
	return f
}

func isSep(c byte) bool {
	return c == ' ' || c == '\t' || c == ',' || c == '\r'
}

func splitFields(data []byte, start, end int) []Field {
	var fields []Field
	i := start
	for i < end {
		if isSep(data[i]) {
			i++
			continue
		}
		j := i
		if q := data[i]; q == '\'' || q == '"' {
			j++
			for j < end {
				if data[j] == q {
					if j+1 < end && data[j+1] == q {
						j += 2
						continue
					}
					j++ // closing quote
					break
				}
				j++
			}
		} else {
			for j < end && !isSep(data[j]) {
				j++
			}
		}
		fields = append(fields, Field{Text: string(data[i:j]), Start: i, End: j})
		i = j
	}
	return fields
}

// Bytes returns the current file content.
func (f *File) Bytes() []byte {
	return append([]byte(nil), f.data...)
}

// Get returns the text of the field at p.
func (f *File) Get(p FieldPath) (string, error) {
	fd, err := f.lookup(p)
	if err != nil {
		return "", err
	}
	return fd.Text, nil
}

// Set replaces the field at p with text. Spans of later fields are shifted
// so the File stays addressable.
func (f *File) Set(p FieldPath, text string) error {
	fd, err := f.lookup(p)
	if err != nil {
		return err
	}
	if text == "" || strings.ContainsAny(text, " \t\r\n,") && !quoted(text) {
		return &FieldError{Path: p, Reason: fmt.Sprintf("value %q is not a single field", text)}
	}

	start, end := fd.Start, fd.End
	out := make([]byte, 0, len(f.data)-(end-start)+len(text))
	out = append(out, f.data[:start]...)
	out = append(out, text...)
	out = append(out, f.data[end:]...)
	f.data = out

	delta := len(text) - (end - start)
	for ri := range f.Records {
		for fi := range f.Records[ri].Fields {
			field := &f.Records[ri].Fields[fi]
			switch {
			case field.Start == start:
				field.Text = text
				field.End += delta
			case field.Start > start:
				field.Start += delta
				field.End += delta
			}
		}
	}
	return nil
}

func quoted(s string) bool {
	return len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0]
}

func (f *File) lookup(p FieldPath) (*Field, error) {
	if p.Record < 1 || p.Record > len(f.Records) {
		return nil, &FieldError{Path: p, Reason: fmt.Sprintf("input has %d records", len(f.Records))}
	}
	rec := &f.Records[p.Record-1]
	if p.Field < 1 || p.Field > len(rec.Fields) {
		return nil, &FieldError{Path: p, Reason: fmt.Sprintf("record %d has %d fields", p.Record, len(rec.Fields))}
	}
	return &rec.Fields[p.Field-1], nil
}

// FieldPath addresses one field: record and field indices, both 1-based.
type FieldPath struct {
	Record int
	Field  int
}

func (p FieldPath) String() string {
	return fmt.Sprintf("r%d.f%d", p.Record, p.Field)
}

// MarshalText implements encoding.TextMarshaler.
func (p FieldPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *FieldPath) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldPath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

var fieldPathRe = regexp.MustCompile(`^[rR](\d+)\.[fF](\d+)$`)

// ParseFieldPath parses "r<record>.f<field>", e.g. "r2.f2".
func ParseFieldPath(s string) (FieldPath, error) {
	m := fieldPathRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return FieldPath{}, fmt.Errorf("invalid field path %q: want r<record>.f<field>", s)
	}
	rec, _ := strconv.Atoi(m[1])
	field, _ := strconv.Atoi(m[2])
	if rec < 1 || field < 1 {
		return FieldPath{}, fmt.Errorf("invalid field path %q: indices start at 1", s)
	}
	return FieldPath{Record: rec, Field: field}, nil
}

// FieldError reports a path that does not address a field of the input.
type FieldError struct {
	Path   FieldPath
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Path, e.Reason)
}
