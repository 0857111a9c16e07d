package bundle

import (
	"regexp"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfemlab/pfemrun/internal/config"
	"github.com/pfemlab/pfemrun/internal/inputrec"
	"github.com/pfemlab/pfemrun/internal/testutil"
)

func defaultMarker(t *testing.T) *regexp.Regexp {
	t.Helper()
	return regexp.MustCompile(config.Default("").Bundle.ReadMarker)
}

func TestExtractSchemaGolden(t *testing.T) {
	s := ExtractSchema("p51", []byte(testutil.P51Source), defaultMarker(t), 2)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "p51_read_lines", []byte(s.ReadLines()))
	g.Assert(t, "p51_read_context", []byte(s.ReadContext()))
	g.Assert(t, "p51_numbered", []byte(s.NumberedSource()))
}

func TestExtractSchemaReadSites(t *testing.T) {
	s := ExtractSchema("p51", []byte(testutil.P51Source), defaultMarker(t), 2)

	require.Len(t, s.Reads, 3)
	assert.Equal(t, ReadSite{
		Record:    1,
		Line:      14,
		Text:      "READ(10,*)nxe,nye",
		Variables: []string{"nxe", "nye"},
		From:      12,
		To:        16,
	}, s.Reads[0])
	assert.Equal(t, 2, s.Reads[1].Record)
	assert.Equal(t, 16, s.Reads[1].Line)
	assert.Equal(t, 20, s.Reads[2].To, "window clipped to the last line")
}

func TestInputMapGolden(t *testing.T) {
	s := ExtractSchema("p51", []byte(testutil.P51Source), defaultMarker(t), 2)
	s.MapInput([]byte(testutil.P51Input))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "p51_input_map", []byte(s.InputMap()))
}

func TestExtractSchemaReadLists(t *testing.T) {
	src := "" +
		"10 READ(10,*) nels, nn ! sizes\n" +
		"IF(nr>0) READ(10,*) (k, rest(i,k), i=1,nr)\n" +
		"IF (loaded(n) /= 0) READ (10, *) load, &\n" +
		"    & factor\n" +
		"READ(10,*) x(1), y\n"
	s := ExtractSchema("p", []byte(src), defaultMarker(t), 0)

	require.Len(t, s.Reads, 4)
	assert.Equal(t, []string{"nels", "nn"}, s.Reads[0].Variables)
	assert.Empty(t, s.Reads[0].Condition)
	assert.Equal(t, []string{"(k, rest(i,k), i=1,nr)"}, s.Reads[1].Variables)
	assert.Equal(t, "nr>0", s.Reads[1].Condition)
	assert.Equal(t, []string{"load", "factor"}, s.Reads[2].Variables)
	assert.Equal(t, "loaded(n) /= 0", s.Reads[2].Condition)
	assert.Equal(t, []string{"x(1)", "y"}, s.Reads[3].Variables)
}

func TestMapInputNamesFieldsByPosition(t *testing.T) {
	src := "READ(10,*) n, (x(i), i=1,n)\nIF(n>1) READ(10,*) E, nu\n"
	s := ExtractSchema("p", []byte(src), defaultMarker(t), 0)
	s.MapInput([]byte("! header\n2 0.5 0.7\n1e6 0.3\n9 9\n9\n"))

	require.Len(t, s.Inputs, 2)
	assert.Equal(t, 2, s.Inputs[0].Line)
	assert.Equal(t, "2 0.5 0.7", s.Inputs[0].Raw)
	assert.Equal(t, []InputField{
		{Path: "r1.f1", Variable: "n", Value: "2"},
		{Path: "r1.f2", Value: "0.5"},
		{Path: "r1.f3", Value: "0.7"},
	}, s.Inputs[0].Fields)
	assert.Equal(t, "nu", s.Inputs[1].Fields[1].Variable)
	assert.Equal(t, 2, s.Unmapped)

	out := s.InputMap()
	assert.Contains(t, out, "only if n>1\n")
	assert.Contains(t, out, "  r1.f2  - = 0.5\n")
	assert.True(t, strings.HasSuffix(out, "\n2 input records past the last read\n"))
}

func TestSchemaFieldPaths(t *testing.T) {
	src := "READ(10,*) nxe, NYE\nREAD(10,*) e, v, (w(i), i=1,2), after\nREAD(10,*) e\n"
	s := ExtractSchema("p", []byte(src), defaultMarker(t), 0)

	assert.Equal(t, map[string]inputrec.FieldPath{
		"nxe": {Record: 1, Field: 1},
		"nye": {Record: 1, Field: 2},
		"v":   {Record: 2, Field: 2},
	}, s.FieldPaths(), "e is read twice and after follows an implied-do group")
}

func TestExtractSchemaClipsAtStart(t *testing.T) {
	src := "read(10,*) a\nx = 1\n  Read (10, *) b\n"
	s := ExtractSchema("p", []byte(src), defaultMarker(t), 6)

	require.Len(t, s.Reads, 2)
	assert.Equal(t, 1, s.Reads[0].From)
	assert.Equal(t, 3, s.Reads[0].To)
	assert.Equal(t, "Read (10, *) b", s.Reads[1].Text)
}

func TestExtractSchemaIgnoresOtherUnits(t *testing.T) {
	src := "READ(11,*) a\nREAD(*,*) b\nOPEN(10,FILE='x')\nTHREAD(10, 2)\n"
	s := ExtractSchema("p", []byte(src), defaultMarker(t), 1)
	assert.Empty(t, s.Reads)
	assert.Empty(t, s.ReadLines())
}
