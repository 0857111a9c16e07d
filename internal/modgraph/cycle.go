package modgraph

import "sort"

// findCycle returns one dependency cycle as a closed path, or nil when the
// graph is acyclic. Strongly connected components are found with Tarjan's
// algorithm; nodes are visited in lexical order so the reported cycle is
// stable across runs.
func findCycle(deps graph) []string {
	for _, scc := range tarjanSCC(deps) {
		if len(scc) > 1 || hasSelfLoop(scc[0], deps) {
			return cyclePath(scc, deps)
		}
	}
	return nil
}

func hasSelfLoop(node string, deps graph) bool {
	for _, d := range deps[node] {
		if d == node {
			return true
		}
	}
	return false
}

func tarjanSCC(deps graph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range deps[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(deps))
	for n := range deps {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath walks edges inside the component from its smallest member until
// it returns to the start.
func cyclePath(scc []string, deps graph) []string {
	start := scc[0]
	if len(scc) == 1 {
		return []string{start, start}
	}

	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, d := range deps[current] {
			if d == start && len(path) > 1 {
				next = d
				break
			}
			if members[d] && !visited[d] && (next == "" || d < next) {
				next = d
			}
		}
		if next == "" {
			// Dead end inside the component: close the loop explicitly.
			return append(path, start)
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
