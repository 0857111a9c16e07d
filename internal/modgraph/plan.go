package modgraph

import (
	"path/filepath"
	"sort"
)

// PlanOptions tunes dependency resolution.
type PlanOptions struct {
	// Bootstrap names units (by Name or base name) compiled first when the
	// interface relation cannot be inferred.
	Bootstrap []string
	// External lists interfaces supplied outside the library.
	External []string
}

// Plan is a validated compile order.
type Plan struct {
	Order []*Unit
	// Inferred is false when the bootstrap fallback produced the order.
	Inferred bool
	// Providers maps each interface to the unit declaring it.
	Providers map[string]*Unit
}

// graph maps a unit name to the names of the units it depends on.
type graph map[string][]string

// NewPlan validates units and computes their compile order. Missing
// interfaces and cycles are reported before any compilation happens.
func NewPlan(units []*Unit, opts PlanOptions) (*Plan, error) {
	providers := make(map[string]*Unit)
	for _, u := range units {
		for _, iface := range u.Provides {
			if other, dup := providers[iface]; dup {
				return nil, &InterfaceError{Kind: InterfaceDuplicate, Unit: u.Name, Interface: iface, Other: other.Name}
			}
			providers[iface] = u
		}
	}

	if len(providers) == 0 {
		return &Plan{Order: bootstrapOrder(units, opts.Bootstrap), Providers: providers}, nil
	}

	external := make(map[string]bool, len(opts.External))
	for _, e := range opts.External {
		external[e] = true
	}

	byName := make(map[string]*Unit, len(units))
	deps := make(graph, len(units))
	for _, u := range units {
		byName[u.Name] = u
		deps[u.Name] = []string{}
		for _, iface := range u.Requires {
			p, ok := providers[iface]
			switch {
			case ok && p == u:
				continue
			case ok:
				deps[u.Name] = appendUnique(deps[u.Name], p.Name)
			case external[iface]:
				continue
			default:
				return nil, &InterfaceError{Kind: InterfaceNotFound, Unit: u.Name, Interface: iface}
			}
		}
	}

	if cycle := findCycle(deps); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	order := topoSort(deps)
	plan := &Plan{Inferred: true, Providers: providers, Order: make([]*Unit, len(order))}
	for i, name := range order {
		plan.Order[i] = byName[name]
	}
	return plan, nil
}

// Names returns the unit names in compile order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Order))
	for i, u := range p.Order {
		names[i] = u.Name
	}
	return names
}

// bootstrapOrder puts the bootstrap units first, in the configured order,
// then every remaining unit lexically.
func bootstrapOrder(units []*Unit, bootstrap []string) []*Unit {
	rank := make(map[string]int, len(bootstrap))
	for i, b := range bootstrap {
		rank[b] = i
	}
	rankOf := func(u *Unit) (int, bool) {
		if r, ok := rank[u.Name]; ok {
			return r, true
		}
		r, ok := rank[filepath.Base(u.Name)]
		return r, ok
	}

	order := append([]*Unit(nil), units...)
	sort.SliceStable(order, func(i, j int) bool {
		ri, bi := rankOf(order[i])
		rj, bj := rankOf(order[j])
		switch {
		case bi && bj:
			return ri < rj
		case bi != bj:
			return bi
		default:
			return order[i].Name < order[j].Name
		}
	})
	return order
}

// topoSort runs Kahn's algorithm, always taking the lexically smallest ready
// unit so the order is reproducible.
func topoSort(deps graph) []string {
	indeg := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for name, ds := range deps {
		indeg[name] = len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], name)
		}
	}

	var ready []string
	for name, n := range indeg {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(deps))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}
	return order
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

func appendUnique(list []string, s string) []string {
	if contains(list, s) {
		return list
	}
	return append(list, s)
}
