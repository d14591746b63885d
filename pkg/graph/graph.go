// Package graph is the compiled Workflow Driver (§4.I): a small
// node/conditional-edge graph specialized to *state.AgentState, executed as
// a streamed sequence of Events over a channel rather than returned in one
// batch. The node/edge registration shape (AddNode, AddConditionalEdge,
// AddEdge, SetEntryPoint, Compile) is grounded on langgraphgo's
// StateGraphTyped; the channel-based streaming and per-run execution
// bookkeeping (mutex-guarded, start time, accumulated errors) follows the
// teacher's own workflow.ExecutionContext and its
// ExecuteStreaming(ctx, request) (<-chan WorkflowEvent, error) shape.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/state"
)

// NodeName identifies a node. The orchestration package's NodeName values
// are used as the concrete node names throughout this domain's graph.
type NodeName = string

// End is the sentinel node name that stops Run.
const End NodeName = "end"

// NodeFunc executes one node, mutating st in place.
type NodeFunc func(ctx context.Context, st *state.AgentState) error

// RouteFunc decides the next node after a node (or the entry point) runs.
// It must be total: every reachable state must map to some registered node
// name or End.
type RouteFunc func(st *state.AgentState) NodeName

// StateGraph is the uncompiled node/edge registration, mirroring
// langgraphgo's StateGraphTyped builder API.
type StateGraph struct {
	nodes           map[NodeName]NodeFunc
	conditionalEdge map[NodeName]RouteFunc
	staticEdge      map[NodeName]NodeName
	entry           NodeName
}

// NewStateGraph builds an empty graph.
func NewStateGraph() *StateGraph {
	return &StateGraph{
		nodes:           make(map[NodeName]NodeFunc),
		conditionalEdge: make(map[NodeName]RouteFunc),
		staticEdge:      make(map[NodeName]NodeName),
	}
}

// AddNode registers a node's execution function.
func (g *StateGraph) AddNode(name NodeName, fn NodeFunc) {
	g.nodes[name] = fn
}

// AddConditionalEdge registers the routing function consulted after name
// runs.
func (g *StateGraph) AddConditionalEdge(name NodeName, route RouteFunc) {
	g.conditionalEdge[name] = route
}

// AddEdge registers an unconditional transition from one node straight to
// another.
func (g *StateGraph) AddEdge(from, to NodeName) {
	g.staticEdge[from] = to
}

// SetEntryPoint sets the first node Run executes.
func (g *StateGraph) SetEntryPoint(name NodeName) {
	g.entry = name
}

// Options configures a compiled graph's run-time limits (§6).
type Options struct {
	NodeTimeout     time.Duration
	OverallDeadline time.Duration
	MaxIterations   int

	// OnNodeFinish, if set, is called after every node execution with its
	// name, duration, and the error it returned (nil on success). It exists
	// so a caller can feed ambient metrics without this package depending
	// on a metrics library.
	OnNodeFinish func(node NodeName, d time.Duration, err error)

	// UnknownNodePolicy is router.unknown_node_policy (§6), threaded
	// through to orchestration.Route by Build's route closure.
	UnknownNodePolicy string
}

// DefaultOptions returns §6's documented defaults.
func DefaultOptions() Options {
	return Options{
		NodeTimeout:       60 * time.Second,
		OverallDeadline:   300 * time.Second,
		MaxIterations:     10,
		UnknownNodePolicy: "end",
	}
}

// Compiled is a validated, runnable graph.
type Compiled struct {
	graph *StateGraph
	opts  Options
}

// Compile validates that every registered edge and the entry point refer to
// a known node, and returns a Compiled graph ready to Run.
func (g *StateGraph) Compile(opts Options) (*Compiled, error) {
	if g.entry == "" {
		return nil, fmt.Errorf("graph: no entry point set")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("graph: entry point %q has no registered node", g.entry)
	}
	for from, to := range g.staticEdge {
		if _, ok := g.nodes[to]; !ok && to != End {
			return nil, fmt.Errorf("graph: edge %q -> %q targets an unregistered node", from, to)
		}
	}
	if opts.NodeTimeout <= 0 {
		opts.NodeTimeout = DefaultOptions().NodeTimeout
	}
	if opts.OverallDeadline <= 0 {
		opts.OverallDeadline = DefaultOptions().OverallDeadline
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	return &Compiled{graph: g, opts: opts}, nil
}

// Event is one step of a Run's streamed output: either a node having just
// executed, or the terminal event carrying the final response.
type Event struct {
	Node     NodeName
	Err      error
	Done     bool
	Final    string
	HasFinal bool
}

// Run executes the compiled graph against st starting from the entry point,
// streaming one Event per node execution on the returned channel. The
// channel is closed after the terminal event. Each node call is wrapped in
// NodeTimeout and panic recovery (a panic becomes an AgentResult-less
// errs.KindInternal error recorded on st and ends the run); the whole run is
// bounded by OverallDeadline. Visiting the entry node more than
// MaxIterations times forces a route to the consolidator node with
// INCOMPLETE recorded instead of looping forever.
func (c *Compiled) Run(ctx context.Context, st *state.AgentState, consolidatorNode NodeName) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		ctx, cancel := context.WithTimeout(ctx, c.opts.OverallDeadline)
		defer cancel()

		current := c.graph.entry
		entryVisits := 0

		// emit sends ev unless ctx is done first, so a canceled run (e.g. a
		// disconnected client that stopped draining events) never blocks
		// this goroutine forever waiting for a reader that isn't coming.
		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			if ctx.Err() != nil {
				st.RecordError(0, errs.KindDeadlineExceeded, "overall run deadline exceeded")
				emit(Event{Node: current, Err: ctx.Err()})
				return
			}

			if current == c.graph.entry {
				entryVisits++
				if entryVisits > c.opts.MaxIterations {
					st.RecordError(0, errs.KindIncomplete, "max supervisor iterations exceeded")
					current = consolidatorNode
				}
			}

			if current == End {
				if !emit(Event{Node: End, Done: true}) {
					return
				}
				if text, ok := st.FinalResponse(); ok {
					emit(Event{Done: true, HasFinal: true, Final: text})
				}
				return
			}

			fn, ok := c.graph.nodes[current]
			if !ok {
				st.RecordError(0, errs.KindInternal, fmt.Sprintf("no node registered for %q", current))
				emit(Event{Node: current, Err: fmt.Errorf("unregistered node %q", current)})
				return
			}

			stepNumber, agentType := currentStepInfo(st)
			slog.Info("node execution starting", "node", current, "step_number", stepNumber, "agent_type", agentType)

			nodeStart := time.Now()
			nodeErr := c.runNode(ctx, fn, st)
			latencyMS := time.Since(nodeStart).Milliseconds()

			if nodeErr != nil {
				slog.Warn("node execution failed", "node", current, "step_number", stepNumber,
					"agent_type", agentType, "latency_ms", latencyMS, "error_kind", errorKind(nodeErr))
			} else {
				slog.Info("node execution finished", "node", current, "step_number", stepNumber,
					"agent_type", agentType, "latency_ms", latencyMS)
			}

			if c.opts.OnNodeFinish != nil {
				c.opts.OnNodeFinish(current, time.Since(nodeStart), nodeErr)
			}
			if !emit(Event{Node: current, Err: nodeErr}) {
				continue
			}
			if nodeErr != nil {
				return
			}

			next, err := c.nextNode(current, st)
			if err != nil {
				emit(Event{Node: current, Err: err})
				return
			}
			current = next
		}
	}()

	return events
}

// currentStepInfo returns the plan step the run is currently positioned at,
// for the entry/exit log lines. Supervisor and Consolidator executions have
// no single step of their own, so the zero values are logged for them.
func currentStepInfo(st *state.AgentState) (stepNumber int, agentType string) {
	step := st.CurrentStep()
	if step == nil {
		return 0, ""
	}
	return step.StepNumber, string(step.AgentType)
}

// errorKind extracts the classified Kind from a node's returned error, for
// the structured warn log; an error that never passed through errs.New or
// errs.Wrap is logged under a generic kind rather than dropped.
func errorKind(err error) string {
	if e, ok := errs.As(err); ok {
		return string(e.Kind)
	}
	return string(errs.KindInternal)
}

func (c *Compiled) nextNode(current NodeName, st *state.AgentState) (NodeName, error) {
	if route, ok := c.graph.conditionalEdge[current]; ok {
		return route(st), nil
	}
	if to, ok := c.graph.staticEdge[current]; ok {
		return to, nil
	}
	return End, nil
}

// runNode executes fn under a per-node timeout, converting a panic into an
// errs.KindInternal error recorded on st rather than crashing the run.
func (c *Compiled) runNode(ctx context.Context, fn NodeFunc, st *state.AgentState) (err error) {
	nodeCtx, cancel := context.WithTimeout(ctx, c.opts.NodeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node panicked: %v", r)
			st.RecordError(0, errs.KindInternal, err.Error())
		}
	}()

	return fn(nodeCtx, st)
}
