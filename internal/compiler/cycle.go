package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/rheo/internal/term"
)

// LoopWarning represents a potential replication loop between
// persistent receives.
//
// Loops are warnings, not errors, because they may be intentional:
//   - Request/reply services that call each other
//   - Worker pipelines that feed results back for another pass
//   - Self-replenishing resource pools
//
// Without a terminating condition they run until the step quota trips.
type LoopWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["jobs", "results", "jobs"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeLoops performs static loop analysis on a term's persistent
// receives.
//
// A persistent receive is a service: every matching message spawns a
// body. When one service's body sends on a channel another service
// listens on, the two can trigger each other forever. The analysis:
//
//  1. Collect persistent receives keyed by their listen channel name
//  2. Add an edge listen → target for every send inside a service body
//     whose target is itself a listen channel
//  3. Use Tarjan's algorithm to find strongly connected components
//  4. Report each SCC with size > 1 or a self-loop as a potential loop
//
// Only syntactic channel names participate: a service listening on a
// computed channel expression is invisible to the analysis, so absence
// of warnings is not proof of termination. A loop-free term returns an
// empty warning list.
func AnalyzeLoops(root term.Proc) []LoopWarning {
	listeners := make(map[string][]term.Proc)
	collectListeners(root, listeners)
	if len(listeners) == 0 {
		return []LoopWarning{}
	}

	graph := buildTriggerGraph(listeners)
	sccs := tarjanSCC(graph)

	var warnings []LoopWarning
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, loopSCCToWarning(scc, graph))
		}
	}

	// Tarjan's visit order depends on map iteration; sort for stable output
	sort.Slice(warnings, func(i, j int) bool {
		return strings.Join(warnings[i].Path, ",") < strings.Join(warnings[j].Path, ",")
	})
	return warnings
}

// collectListeners walks a term recording persistent receive bodies
// keyed by the syntactic name of their listen channel.
func collectListeners(p term.Proc, listeners map[string][]term.Proc) {
	walkChildren(p, func(child term.Proc) {
		collectListeners(child, listeners)
	})
	if recv, ok := p.(term.Receive); ok && recv.Mode == term.ReceivePersistent {
		if ch, ok := recv.Chan.(term.Var); ok {
			listeners[ch.Name] = append(listeners[ch.Name], recv.Body)
		}
	}
}

// triggerGraph maps listen channel → listen channels its bodies send to.
type triggerGraph map[string][]string

// buildTriggerGraph constructs the service trigger graph.
//
// For each service:
//   - Extract every send target inside its bodies
//   - Keep the targets that are themselves listen channels
//   - Add edges: this_channel → triggered_channels
func buildTriggerGraph(listeners map[string][]term.Proc) triggerGraph {
	graph := make(triggerGraph)

	for channel, bodies := range listeners {
		// Initialize with empty slice if no edges (ensures node exists in graph)
		if graph[channel] == nil {
			graph[channel] = []string{}
		}
		for _, body := range bodies {
			for _, target := range collectSendTargets(body) {
				if _, listens := listeners[target]; listens {
					graph[channel] = append(graph[channel], target)
				}
			}
		}
	}

	return graph
}

// collectSendTargets returns the syntactic channel names a subterm
// sends to, at any nesting depth.
func collectSendTargets(p term.Proc) []string {
	var targets []string
	var walk func(term.Proc)
	walk = func(p term.Proc) {
		if send, ok := p.(term.Send); ok {
			if ch, ok := send.Chan.(term.Var); ok {
				targets = append(targets, ch.Name)
			}
		}
		walkChildren(p, walk)
	}
	walk(p)
	return targets
}

// walkChildren invokes fn on every direct child term of p.
func walkChildren(p term.Proc, fn func(term.Proc)) {
	switch node := p.(type) {
	case term.Par:
		for _, child := range node.Procs {
			fn(child)
		}
	case term.New:
		fn(node.Body)
	case term.Send:
		fn(node.Chan)
		for _, arg := range node.Args {
			fn(arg)
		}
		if node.Then != nil {
			fn(node.Then)
		}
	case term.Receive:
		fn(node.Chan)
		fn(node.Body)
	case term.Select:
		for _, arm := range node.Arms {
			fn(arm.Chan)
			fn(arm.Body)
		}
	case term.Cond:
		fn(node.If)
		fn(node.Then)
		if node.Else != nil {
			fn(node.Else)
		}
	case term.Match:
		fn(node.Target)
		for _, c := range node.Cases {
			fn(c.Body)
		}
	case term.Bundle:
		fn(node.Target)
	case term.Operation:
		for _, operand := range node.Operands {
			fn(operand)
		}
	case term.Collect:
		for _, elem := range node.Elems {
			fn(elem)
		}
	case term.Interpolate:
		fn(node.Template)
		fn(node.Args)
	case term.Conjoin:
		fn(node.Left)
		fn(node.Right)
	case term.Disjoin:
		fn(node.Left)
		fn(node.Right)
	case term.Negate:
		fn(node.Body)
	}
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph triggerGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of channel names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph triggerGraph) [][]string {
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
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
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
			sccs = append(sccs, scc)
		}
	}

	// Visit all nodes
	for node := range graph {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// loopSCCToWarning converts an SCC to a LoopWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [channel, channel].
// For multi-node cycles, the path shows a cycle traversal.
func loopSCCToWarning(scc []string, graph triggerGraph) LoopWarning {
	if len(scc) == 1 {
		// Self-loop
		channel := scc[0]
		return LoopWarning{
			Path:    []string{channel, channel},
			Message: fmt.Sprintf("Self-triggering service detected: %s → %s", channel, channel),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return LoopWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential replication loop detected: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph triggerGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
