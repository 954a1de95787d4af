package taskgraph

import (
	"context"
	"log/slog"
)

// Engine evaluates task specs. It is strictly sequential; one Satisfy call
// should be active per Engine at a time.
type Engine struct {
	logger *slog.Logger

	// DryRun suppresses every action. Unready atomic tasks are reported
	// through their Preview hook and recorded as pending.
	DryRun bool
}

// NewEngine creates an engine logging to logger (slog.Default() if nil).
func NewEngine(logger *slog.Logger, dryRun bool) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger, DryRun: dryRun}
}

// Satisfy brings root and everything it requires to readiness. The returned
// trace is always non-nil, also when an error is returned.
func (e *Engine) Satisfy(ctx context.Context, root *Spec) (*Trace, error) {
	if root == nil {
		return newTrace(""), invalidf("nil root task")
	}
	w := &walk{
		engine: e,
		trace:  newTrace(root.Name),
		done:   make(map[string]result),
		active: make(map[string]bool),
	}
	r := w.satisfy(ctx, root)
	return w.trace, r.err
}

type result struct {
	state State
	err   error
}

// walk holds the per-call memo; it is discarded when Satisfy returns.
type walk struct {
	engine *Engine
	trace  *Trace
	done   map[string]result
	active map[string]bool
	stack  []string
}

func (w *walk) log() *slog.Logger { return w.engine.logger }

func (w *walk) satisfy(ctx context.Context, s *Spec) result {
	if s == nil {
		return result{state: StateFailed, err: invalidf("nil requirement")}
	}
	if s.Name == "" {
		return result{state: StateFailed, err: invalidf("task without a name")}
	}
	if r, ok := w.done[s.Name]; ok {
		return r
	}
	if w.active[s.Name] {
		return result{state: StateFailed, err: cycleError(append(append([]string(nil), w.stack...), s.Name))}
	}

	node := w.trace.visit(s)
	w.active[s.Name] = true
	w.stack = append(w.stack, s.Name)

	var r result
	switch s.Kind {
	case KindExternal:
		r = w.external(s)
	case KindComposite:
		r = w.requires(ctx, s)
		if r.err == nil && r.state == StateReady {
			w.log().Info("Ready", "task", s.Name)
		}
	case KindAtomic:
		r = w.atomic(ctx, s)
	default:
		r = result{state: StateFailed, err: invalidf("task %q has unknown kind %d", s.Name, s.Kind)}
	}

	w.stack = w.stack[:len(w.stack)-1]
	delete(w.active, s.Name)
	node.State = r.state
	w.done[s.Name] = r
	return r
}

func (w *walk) external(s *Spec) result {
	if s.Asset == nil {
		w.log().Debug("Ready (no asset)", "task", s.Name)
		return result{state: StateReady}
	}
	if s.Asset.Ready() {
		w.log().Info("Ready", "task", s.Name)
		return result{state: StateReady}
	}
	w.log().Warn("Not ready [external asset]", "task", s.Name, "asset", s.Asset.Ref())
	return result{state: StateFailed, err: &ExternalError{Task: s.Name, Ref: s.Asset.Ref()}}
}

// requires satisfies s.Requires in declaration order and stops at the first
// failure. The state is pending if any requirement is pending (dry run).
func (w *walk) requires(ctx context.Context, s *Spec) result {
	state := StateReady
	for i, req := range s.Requires {
		r := w.satisfy(ctx, req)
		if r.err != nil {
			w.trace.skip(s.Requires[i+1:])
			w.log().Warn("Not ready [requirement failed]", "task", s.Name, "requirement", nameOf(req))
			return result{state: StateFailed, err: r.err}
		}
		if r.state == StatePending {
			state = StatePending
		}
	}
	return result{state: state}
}

func (w *walk) atomic(ctx context.Context, s *Spec) result {
	r := w.requires(ctx, s)
	if r.err != nil {
		return r
	}
	if s.Asset.Ready() {
		w.log().Info("Ready", "task", s.Name)
		return result{state: StateReady}
	}
	if w.engine.DryRun {
		w.log().Info("Would execute [dry run]", "task", s.Name)
		if s.Preview != nil {
			s.Preview(ctx)
		}
		return result{state: StatePending}
	}

	w.log().Info("Executing", "task", s.Name)
	var actionErr error
	if s.Action != nil {
		actionErr = s.Action(ctx)
	}
	if !s.Asset.Ready() {
		w.log().Error("Not ready [action failed]", "task", s.Name, "err", actionErr)
		return result{state: StateFailed, err: &ActionFailedError{Task: s.Name, Err: actionErr}}
	}
	if actionErr != nil {
		w.log().Warn("Action reported an error but its asset is ready", "task", s.Name, "err", actionErr)
	}
	w.log().Info("Ready", "task", s.Name)
	return result{state: StateReady}
}

func nameOf(s *Spec) string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}
