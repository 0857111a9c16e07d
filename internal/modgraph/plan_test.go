package modgraph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(name string, provides []string, requires ...string) *Unit {
	return &Unit{Name: name, Path: "/lib/" + name, Provides: provides, Requires: requires}
}

func TestNewPlanOrdersDependenciesFirst(t *testing.T) {
	units := []*Unit{
		unit("a_solver.f03", []string{"solver"}, "geom", "main"),
		unit("geom.f03", []string{"geom"}, "main"),
		unit("main.f03", []string{"main"}, "iso_fortran_env"),
		unit("z_post.f03", nil, "solver"),
		unit("b_util.f03", nil),
	}
	plan, err := NewPlan(units, PlanOptions{External: []string{"iso_fortran_env"}})
	require.NoError(t, err)
	assert.True(t, plan.Inferred)

	want := []string{"b_util.f03", "main.f03", "geom.f03", "a_solver.f03", "z_post.f03"}
	if diff := cmp.Diff(want, plan.Names()); diff != "" {
		t.Errorf("compile order mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPlanRandomDAGsRespectDependencies(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(12)
		units := make([]*Unit, n)
		for i := 0; i < n; i++ {
			units[i] = unit(fmt.Sprintf("u%02d.f03", i), []string{fmt.Sprintf("m%d", i)})
			// Only depend on lower indices: always acyclic.
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					units[i].Requires = append(units[i].Requires, fmt.Sprintf("m%d", j))
				}
			}
		}
		rng.Shuffle(n, func(i, j int) { units[i], units[j] = units[j], units[i] })

		plan, err := NewPlan(units, PlanOptions{})
		require.NoError(t, err)
		require.Len(t, plan.Order, n)

		pos := map[string]int{}
		for i, u := range plan.Order {
			pos[u.Provides[0]] = i
		}
		for _, u := range plan.Order {
			for _, req := range u.Requires {
				assert.Less(t, pos[req], pos[u.Provides[0]], "trial %d: %s compiled before its dependency %s", trial, u.Name, req)
			}
		}
	}
}

func TestNewPlanIsDeterministic(t *testing.T) {
	build := func() []string {
		plan, err := NewPlan([]*Unit{
			unit("c.f03", nil, "m"),
			unit("b.f03", nil, "m"),
			unit("m.f03", []string{"m"}),
			unit("a.f03", nil, "m"),
		}, PlanOptions{})
		require.NoError(t, err)
		return plan.Names()
	}
	first := build()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build())
	}
	assert.Equal(t, []string{"m.f03", "a.f03", "b.f03", "c.f03"}, first)
}

func TestNewPlanRejectsCycles(t *testing.T) {
	tests := []struct {
		name  string
		units []*Unit
		path  []string
	}{
		{
			name: "two units",
			units: []*Unit{
				unit("a.f03", []string{"a"}, "b"),
				unit("b.f03", []string{"b"}, "a"),
			},
			path: []string{"a.f03", "b.f03", "a.f03"},
		},
		{
			name: "three units",
			units: []*Unit{
				unit("a.f03", []string{"a"}, "c"),
				unit("b.f03", []string{"b"}, "a"),
				unit("c.f03", []string{"c"}, "b"),
				unit("d.f03", []string{"d"}),
			},
			path: []string{"a.f03", "c.f03", "b.f03", "a.f03"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlan(tt.units, PlanOptions{})
			require.Error(t, err)
			require.True(t, IsCycle(err))

			var ce *CycleError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.path, ce.Path)
			assert.Contains(t, err.Error(), "cyclic module dependency")
		})
	}
}

func TestNewPlanMissingInterface(t *testing.T) {
	_, err := NewPlan([]*Unit{
		unit("main.f03", []string{"main"}),
		unit("solver.f03", []string{"solver"}, "main", "lapack95"),
	}, PlanOptions{External: []string{"iso_fortran_env"}})
	require.Error(t, err)
	assert.True(t, IsInterfaceError(err, InterfaceNotFound))
	assert.Contains(t, err.Error(), "interface file not found")
	assert.Contains(t, err.Error(), "lapack95")
}

func TestNewPlanDuplicateProvider(t *testing.T) {
	_, err := NewPlan([]*Unit{
		unit("a/main.f03", []string{"main"}),
		unit("b/main.f03", []string{"main"}),
	}, PlanOptions{})
	require.Error(t, err)
	assert.True(t, IsInterfaceError(err, InterfaceDuplicate))
}

func TestNewPlanBootstrapFallback(t *testing.T) {
	units := []*Unit{
		unit("assemble.f03", nil),
		unit("geom/geom.f03", nil),
		unit("main/main.f03", nil),
		unit("bandred.f03", nil),
	}
	plan, err := NewPlan(units, PlanOptions{Bootstrap: []string{"main.f03", "geom.f03"}})
	require.NoError(t, err)
	assert.False(t, plan.Inferred)
	assert.Equal(t, []string{"main/main.f03", "geom/geom.f03", "assemble.f03", "bandred.f03"}, plan.Names())
}
