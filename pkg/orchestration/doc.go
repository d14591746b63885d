// Open question: §5 permits, but does not mandate, executing independent
// steps (no DependsOn relationship between them) in parallel. This package
// dispatches exactly one agent per Supervisor tick, in plan order, even when
// two pending steps share no dependency. Sequential dispatch keeps the
// Supervisor/Router pair a pure, trivially-total function of AgentState with
// no goroutine bookkeeping of its own; a parallel dispatcher would need to
// track in-flight steps as a new piece of state this package doesn't carry.
// Grounded on the teacher's workflowagent.NewSequential, which is itself a
// LoopAgent restricted to one pass rather than a distinct concurrent
// construct — the same "sequential is the degenerate, always-correct case"
// choice made here.
package orchestration
