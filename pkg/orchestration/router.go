package orchestration

import (
	"fmt"

	"github.com/queryflowhq/queryflow/pkg/errs"
	"github.com/queryflowhq/queryflow/pkg/state"
)

// UnknownNodePolicy is router.unknown_node_policy (§6): what Route does
// with a next_agent value it doesn't recognize.
type UnknownNodePolicy string

const (
	// PolicyEnd ends the run silently, as if should_continue were false.
	PolicyEnd UnknownNodePolicy = "end"
	// PolicyError ends the run too (Route is total and has no node to
	// route an error to) but first records a KindInternal error, so the
	// run's error list and the Consolidator's partial_failure note
	// reflect that this was a routing defect rather than a normal stop.
	PolicyError UnknownNodePolicy = "error"
)

// Route is the pure total function the Driver calls after every node
// returns (§4.G). It never touches st except under PolicyError — only
// reads state.should_continue and state.next_agent otherwise — and always
// returns a NodeName, including for next_agent values it doesn't recognize:
// an unrecognized hint ends the run rather than panicking or looping.
func Route(st *state.AgentState, policy UnknownNodePolicy) NodeName {
	if !st.ShouldContinue() {
		return NodeEnd
	}

	switch st.NextAgent() {
	case state.NextSupervisor:
		return NodeSupervisor
	case state.NextAgent(state.SQLAgent):
		return NodeSQLAgent
	case state.NextAgent(state.RESTAgent):
		return NodeRESTAgent
	case state.NextAgent(state.SOAPAgent):
		return NodeSOAPAgent
	case state.NextConsolidate:
		return NodeConsolidator
	case state.NextEnd:
		return NodeEnd
	default:
		if policy == PolicyError {
			st.RecordError(0, errs.KindInternal, fmt.Sprintf("router: unrecognized next_agent %q", st.NextAgent()))
		}
		return NodeEnd
	}
}
