package taskgraph

import (
	"fmt"
	"io"
	"strings"
)

// State is the outcome recorded for one node of a walk.
type State string

const (
	StateReady        State = "ready"
	StatePending      State = "pending"
	StateFailed       State = "failed"
	StateNotEvaluated State = "not-evaluated"
)

// Node is one task visited (or skipped by fail-fast) during a walk.
type Node struct {
	Name     string
	Kind     Kind
	State    State
	Requires []string
}

// Trace is the record of one top-level Satisfy call: nodes in discovery
// order with their requires edges in declaration order.
type Trace struct {
	Root  string
	nodes []*Node
	index map[string]int
}

func newTrace(root string) *Trace {
	return &Trace{Root: root, index: make(map[string]int)}
}

// visit returns the node for s, adding it on first sight.
func (t *Trace) visit(s *Spec) *Node {
	if i, ok := t.index[s.Name]; ok {
		n := t.nodes[i]
		if n.State == StateNotEvaluated && n.Requires == nil {
			n.Kind = s.Kind
			n.Requires = s.requireNames()
		}
		return n
	}
	n := &Node{Name: s.Name, Kind: s.Kind, State: StateNotEvaluated, Requires: s.requireNames()}
	t.index[s.Name] = len(t.nodes)
	t.nodes = append(t.nodes, n)
	return n
}

// skip records requirements that fail-fast left unevaluated.
func (t *Trace) skip(specs []*Spec) {
	for _, s := range specs {
		if s == nil {
			continue
		}
		if _, ok := t.index[s.Name]; ok {
			continue
		}
		t.index[s.Name] = len(t.nodes)
		t.nodes = append(t.nodes, &Node{Name: s.Name, Kind: s.Kind, State: StateNotEvaluated})
	}
}

// Nodes returns a copy of the recorded nodes in discovery order.
func (t *Trace) Nodes() []Node {
	if t == nil {
		return nil
	}
	out := make([]Node, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = *n
		out[i].Requires = append([]string(nil), n.Requires...)
	}
	return out
}

// Node looks up a recorded node by task name.
func (t *Trace) Node(name string) (Node, bool) {
	if t == nil {
		return Node{}, false
	}
	i, ok := t.index[name]
	if !ok {
		return Node{}, false
	}
	return *t.nodes[i], true
}

// Names returns task names in the given state, in discovery order.
func (t *Trace) Names(state State) []string {
	var names []string
	for _, n := range t.Nodes() {
		if n.State == state {
			names = append(names, n.Name)
		}
	}
	return names
}

// ─── Graph Export ───────────────────────────────────────────────────────────

var stateColors = map[State]string{
	StateReady:        "palegreen",
	StatePending:      "orange",
	StateFailed:       "tomato",
	StateNotEvaluated: "lightgray",
}

// WriteDOT renders the trace as a Graphviz digraph. Node ids follow discovery
// order, so identical task structures render byte-identically.
func (t *Trace) WriteDOT(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotQuote(t.Root))
	b.WriteString("  node [shape=box style=filled];\n")
	for i, n := range t.nodes {
		shape := ""
		if n.Kind == KindExternal {
			shape = " shape=ellipse"
		}
		fmt.Fprintf(&b, "  _%d [label=%s fillcolor=%s%s];\n", i, dotQuote(n.Name), stateColors[n.State], shape)
	}
	for i, n := range t.nodes {
		for _, r := range n.Requires {
			if j, ok := t.index[r]; ok {
				fmt.Fprintf(&b, "  _%d -> _%d;\n", i, j)
			}
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// DOT returns the Graphviz rendering of the trace.
func (t *Trace) DOT() string {
	var b strings.Builder
	_ = t.WriteDOT(&b)
	return b.String()
}

func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
