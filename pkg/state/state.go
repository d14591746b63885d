// Package state defines the per-run AgentState and the typed helpers that
// are the only sanctioned way to mutate it (§4.C). Ownership of each field
// group follows the same split the orchestration core uses throughout:
// the Driver and Supervisor own the step cursor and routing hint; agents
// only ever append their own result; the Consolidator only ever sets the
// final response.
package state

import (
	"context"

	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/tool"
)

// AgentType names a specialized agent. One-to-one with tool.DataSourceClass.
type AgentType string

const (
	SQLAgent  AgentType = "SQL_AGENT"
	RESTAgent AgentType = "REST_AGENT"
	SOAPAgent AgentType = "SOAP_AGENT"
)

// DataSourceClassFor returns the tool.DataSourceClass an AgentType operates
// against.
func DataSourceClassFor(a AgentType) tool.DataSourceClass {
	switch a {
	case SQLAgent:
		return tool.ClassRelationalDB
	case RESTAgent:
		return tool.ClassRESTAPI
	case SOAPAgent:
		return tool.ClassSOAPAPI
	default:
		return ""
	}
}

// NextAgent is state.next_agent: either a concrete AgentType, or one of the
// two routing sentinels.
type NextAgent string

const (
	NextSupervisor  NextAgent = "SUPERVISOR"
	NextConsolidate NextAgent = "CONSOLIDATE"
	NextEnd         NextAgent = "END"
)

// StepStatus is the lifecycle of one planned Step.
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepInFlight StepStatus = "IN_FLIGHT"
	StepDone     StepStatus = "DONE"
	StepFailed   StepStatus = "FAILED"
	StepSkipped  StepStatus = "SKIPPED"
)

// Complexity is the planner's coarse cost estimate for a Plan.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "med"
	ComplexityHigh   Complexity = "high"
)

// Step is one planned agent invocation.
type Step struct {
	StepNumber      int
	Description     string
	AgentType       AgentType
	DataSourceClass tool.DataSourceClass
	DependsOn       []int
	ParameterHints  map[string]any
	Status          StepStatus
}

// Plan is the Planner's immutable output, except for each step's Status.
type Plan struct {
	PlanID               string
	Query                string
	Steps                []*Step
	RequiresConsolidation bool
	EstimatedComplexity  Complexity
	// Notes carries free-form planner annotations, including an optional
	// "format" hint the Consolidator's deterministic fallback honors (§4.H).
	Notes map[string]string
}

// StepAt returns the step with the given 1-based step number, or nil.
func (p *Plan) StepAt(stepNumber int) *Step {
	if p == nil {
		return nil
	}
	for _, s := range p.Steps {
		if s.StepNumber == stepNumber {
			return s
		}
	}
	return nil
}

// AgentResult is the normalized outcome of one agent executing one step.
type AgentResult struct {
	StepNumber int
	AgentType  AgentType
	ToolName   string
	OK         bool
	Rows       []map[string]any
	Error      errs.Kind
	LatencyMS  int64
}

// ErrorEntry is one record in state.errors.
type ErrorEntry struct {
	StepNumber int
	Kind       errs.Kind
	Message    string
}

// AgentState is the per-run, per-session accumulator (§3). All fields are
// private; mutation happens only through the methods below, which is what
// lets §3's invariants (append-only result sequences, monotone step cursor)
// hold regardless of caller.
type AgentState struct {
	query   string
	context map[string]any

	plan              *Plan
	currentStepIndex  int

	sqlResults  []AgentResult
	restResults []AgentResult
	soapResults []AgentResult

	nextAgent     NextAgent
	shouldContinue bool
	finalResponse  *string
	errors         []ErrorEntry

	ctx context.Context
}

// New creates a fresh AgentState for one run. context is the caller-supplied
// opaque map (e.g. prior turn summaries); it is copied defensively.
func New(ctx context.Context, query string, callerContext map[string]any) *AgentState {
	cp := make(map[string]any, len(callerContext))
	for k, v := range callerContext {
		cp[k] = v
	}
	return &AgentState{
		query:          query,
		context:        cp,
		currentStepIndex: 0,
		shouldContinue: true,
		ctx:            ctx,
	}
}

// Query returns the original user query (immutable).
func (s *AgentState) Query() string { return s.query }

// Context returns a defensive copy of the caller-supplied context map.
func (s *AgentState) Context() map[string]any {
	cp := make(map[string]any, len(s.context))
	for k, v := range s.context {
		cp[k] = v
	}
	return cp
}

// RunContext returns the cancellation context for this run.
func (s *AgentState) RunContext() context.Context { return s.ctx }

// Plan returns the current plan, or nil if none has been set yet.
func (s *AgentState) Plan() *Plan { return s.plan }

// SetPlan installs the plan. It is a programming error to call this more
// than once per run; callers (the Supervisor) check Plan() == nil first.
func (s *AgentState) SetPlan(p *Plan) { s.plan = p }

// CurrentStepIndex returns the 0-based cursor into plan.Steps.
func (s *AgentState) CurrentStepIndex() int { return s.currentStepIndex }

// CurrentStep returns the step at the current cursor, or nil if the plan is
// nil or the cursor has run past the end of the plan.
func (s *AgentState) CurrentStep() *Step {
	if s.plan == nil || s.currentStepIndex < 0 || s.currentStepIndex >= len(s.plan.Steps) {
		return nil
	}
	return s.plan.Steps[s.currentStepIndex]
}

// Advance moves the step cursor forward by one. The cursor is monotone
// non-decreasing for the life of the state (§3 invariant 2); Advance never
// decreases it.
func (s *AgentState) Advance() {
	s.currentStepIndex++
}

// NextAgent returns the routing hint the Supervisor last set.
func (s *AgentState) NextAgent() NextAgent { return s.nextAgent }

// SetNextAgent sets the routing hint consumed by the Router.
func (s *AgentState) SetNextAgent(n NextAgent) { s.nextAgent = n }

// ShouldContinue reports whether any further node may execute.
func (s *AgentState) ShouldContinue() bool { return s.shouldContinue }

// SetShouldContinue sets the continuation flag. Once set to false, the
// Driver must not execute any further node (§3 invariant).
func (s *AgentState) SetShouldContinue(v bool) { s.shouldContinue = v }

// AppendResult appends r to the result sequence matching r.AgentType. Result
// sequences only ever grow (§3 invariant 2); there is no remove/replace
// operation.
func (s *AgentState) AppendResult(r AgentResult) {
	switch r.AgentType {
	case SQLAgent:
		s.sqlResults = append(s.sqlResults, r)
	case RESTAgent:
		s.restResults = append(s.restResults, r)
	case SOAPAgent:
		s.soapResults = append(s.soapResults, r)
	}
	if step := s.plan.StepAt(r.StepNumber); step != nil {
		if r.OK {
			step.Status = StepDone
		} else {
			step.Status = StepFailed
		}
	}
}

// SQLResults returns a defensive copy of the SQL agent's result sequence.
func (s *AgentState) SQLResults() []AgentResult { return append([]AgentResult(nil), s.sqlResults...) }

// RESTResults returns a defensive copy of the REST agent's result sequence.
func (s *AgentState) RESTResults() []AgentResult {
	return append([]AgentResult(nil), s.restResults...)
}

// SOAPResults returns a defensive copy of the SOAP agent's result sequence.
func (s *AgentState) SOAPResults() []AgentResult {
	return append([]AgentResult(nil), s.soapResults...)
}

// AllResults returns every AgentResult recorded so far, in the order
// sql, rest, soap within each sequence (used by the Consolidator).
func (s *AgentState) AllResults() []AgentResult {
	all := make([]AgentResult, 0, len(s.sqlResults)+len(s.restResults)+len(s.soapResults))
	all = append(all, s.sqlResults...)
	all = append(all, s.restResults...)
	all = append(all, s.soapResults...)
	return all
}

// ResultFor returns the DependsOn-satisfying AgentResult for stepNumber, if
// one exists with OK=true.
func (s *AgentState) ResultFor(stepNumber int) (AgentResult, bool) {
	for _, r := range s.AllResults() {
		if r.StepNumber == stepNumber && r.OK {
			return r, true
		}
	}
	return AgentResult{}, false
}

// FinalResponse returns the consolidated answer, or ("", false) if the
// consolidator has not yet run successfully.
func (s *AgentState) FinalResponse() (string, bool) {
	if s.finalResponse == nil {
		return "", false
	}
	return *s.finalResponse, true
}

// SetFinal records the consolidator's formatted answer. Per §3, final
// response is set iff the Consolidator ran successfully.
func (s *AgentState) SetFinal(text string) {
	s.finalResponse = &text
}

// Errors returns a defensive copy of the accumulated error log.
func (s *AgentState) Errors() []ErrorEntry { return append([]ErrorEntry(nil), s.errors...) }

// RecordError appends one entry to state.errors. This never aborts the run;
// it is the caller's responsibility to also fail the relevant step/result.
func (s *AgentState) RecordError(stepNumber int, kind errs.Kind, message string) {
	s.errors = append(s.errors, ErrorEntry{StepNumber: stepNumber, Kind: kind, Message: message})
}
