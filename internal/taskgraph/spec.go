// Package taskgraph is uwflow's lazy, dependency-driven task engine.
//
// A task is one of three kinds:
//
//	External   an asset the engine only checks (user inputs)
//	Atomic     an asset plus an action that produces it
//	Composite  a grouping whose readiness is the conjunction of its requires
//
// Engine.Satisfy walks a task depth-first, left to right, running each action
// at most once and skipping any whose asset already exists. Every call returns
// the Trace of the walk, which renders as a Graphviz graph.
package taskgraph

import (
	"context"

	"github.com/uwflow/uwflow/internal/asset"
)

// Kind discriminates the three task variants.
type Kind int

const (
	KindExternal Kind = iota
	KindAtomic
	KindComposite
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindAtomic:
		return "atomic"
	case KindComposite:
		return "composite"
	default:
		return "unknown"
	}
}

// Action performs the side effect that should make an atomic task's asset ready.
type Action func(ctx context.Context) error

// Spec is a task definition. Builders below are the only supported way to
// make one; the engine treats a Spec as read-only.
type Spec struct {
	Name     string
	Kind     Kind
	Asset    *asset.Asset
	Requires []*Spec
	Action   Action

	// Preview reports what Action would do. The engine calls it instead of
	// Action when running dry.
	Preview func(ctx context.Context)
}

// External declares an input the engine checks but never produces. A nil
// asset means there is nothing to check and the task is always ready.
func External(name string, a *asset.Asset) *Spec {
	return &Spec{Name: name, Kind: KindExternal, Asset: a}
}

// Atomic declares a task that runs action to make a ready, after every
// entry of requires is satisfied.
func Atomic(name string, a *asset.Asset, action Action, requires ...*Spec) *Spec {
	return &Spec{Name: name, Kind: KindAtomic, Asset: a, Action: action, Requires: requires}
}

// Composite declares a task that is ready once all of requires are.
func Composite(name string, requires ...*Spec) *Spec {
	return &Spec{Name: name, Kind: KindComposite, Requires: requires}
}

// WithPreview attaches a dry-run reporter and returns s.
func (s *Spec) WithPreview(fn func(ctx context.Context)) *Spec {
	s.Preview = fn
	return s
}

// requireNames lists the names of s's requirements in declaration order.
func (s *Spec) requireNames() []string {
	names := make([]string, 0, len(s.Requires))
	for _, r := range s.Requires {
		if r != nil {
			names = append(names, r.Name)
		}
	}
	return names
}
