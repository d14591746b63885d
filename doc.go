// Package queryflow is a multi-agent query orchestration engine: a
// supervisor plans a user's natural-language query into steps against
// relational, REST, and SOAP data sources, specialized agents execute each
// step's tool calls, and a consolidator merges the results into a single
// response.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/queryflowhq/queryflow/cmd/queryflow@latest
//
// Start it against a provider:
//
//	export OPENAI_API_KEY=sk-...
//	queryflow serve --config queryflow.yaml
//
// # Architecture
//
//	Client → Chat transport → Supervisor → Router → Agents (SQL/REST/SOAP) → Consolidator
//
// The supervisor and router live in pkg/orchestration and pkg/planner, the
// workflow itself runs on the graph engine in pkg/graph, and the agents in
// pkg/agent/{sqlagent,restagent,soapagent} bind planned steps to tools
// registered in pkg/registry.
package queryflow
