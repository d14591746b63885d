// Package sqltool is a reference RELATIONAL_DB tool adapter: it runs a
// fixed, named SQL query through database/sql against a Postgres
// connection (driven by lib/pq) and normalizes the result set into
// tool.Result rows. It exists so the SQL agent has something concrete to
// talk to in tests and examples; the orchestration core never imports it
// directly.
package sqltool

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/queryflowhq/queryflow/pkg/tool"
)

// Query pairs a fixed SQL statement with the tool.Descriptor fields that
// describe it to the LLM Gateway and Registry.
type Query struct {
	Name            string
	Description     string
	Keywords        []string
	Statement       string
	ParameterSchema []tool.Parameter
	Capabilities    []tool.Capability
	Priority        int
}

// Tool runs a fixed set of named queries against one *sql.DB.
type Tool struct {
	db *sql.DB
}

// New wraps an already-open *sql.DB (typically opened with
// sql.Open("postgres", dsn)).
func New(db *sql.DB) *Tool {
	return &Tool{db: db}
}

// Descriptor builds a tool.Descriptor for q, bound to t.invoke.
func (t *Tool) Descriptor(q Query) *tool.Descriptor {
	return &tool.Descriptor{
		Name:            q.Name,
		Description:     q.Description,
		Keywords:        q.Keywords,
		DataSourceClass: tool.ClassRelationalDB,
		ParameterSchema: q.ParameterSchema,
		Capabilities:    q.Capabilities,
		Priority:        q.Priority,
		Invoke:          t.invoke(q),
	}
}

// invoke binds q's statement into a tool.InvokeFunc. Arguments are passed
// positionally in parameter-schema order: ParamPositional parameters map to
// $1, $2, ... in q.Statement, matching lib/pq's placeholder syntax.
func (t *Tool) invoke(q Query) tool.InvokeFunc {
	return func(ctx context.Context, args map[string]any) (*tool.Result, error) {
		params := make([]any, 0, len(q.ParameterSchema))
		for _, p := range q.ParameterSchema {
			v, ok := args[p.Name]
			if !ok {
				if p.Required {
					return nil, &tool.Error{Code: tool.ErrBadRequest, Message: fmt.Sprintf("missing required parameter %q", p.Name)}
				}
				v = p.Default
			}
			params = append(params, v)
		}

		rows, err := t.db.QueryContext(ctx, q.Statement, params...)
		if err != nil {
			return nil, classifyError(err)
		}
		defer rows.Close()

		result, err := scanRows(rows)
		if err != nil {
			return nil, classifyError(err)
		}
		result.SourceTag = q.Name
		return result, nil
	}
}

// scanRows converts a *sql.Rows into the normalized []map[string]any shape
// tool.Result expects, without knowing the query's column types ahead of
// time.
func scanRows(rows *sql.Rows) (*tool.Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(cols))
		for i, col := range cols {
			record[col] = normalizeValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &tool.Result{Rows: out}, nil
}

// normalizeValue converts a []byte scan result (how lib/pq returns text and
// numeric types absent an explicit Go destination type) into a string, and
// otherwise passes the value through unchanged.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// classifyError maps a database/sql-level failure onto tool.ErrorCode.
func classifyError(err error) error {
	if err == sql.ErrNoRows {
		return &tool.Error{Code: tool.ErrNotFound, Message: "no matching rows", Cause: err}
	}
	if err == context.DeadlineExceeded || err == context.Canceled {
		return &tool.Error{Code: tool.ErrTimeout, Message: "query canceled", Cause: err}
	}
	return &tool.Error{Code: tool.ErrUpstream, Message: "query failed", Cause: err}
}
