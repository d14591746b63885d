// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tool defines the boundary between the orchestration core and the
// backends it queries. Agents never introspect a concrete tool's type; they
// only ever see the Descriptor and its Invoke binding.
package tool

import (
	"context"

	"github.com/queryflowhq/queryflow/pkg/errs"
)

// DataSourceClass names a backend family. One-to-one with AgentType.
type DataSourceClass string

const (
	ClassRelationalDB DataSourceClass = "RELATIONAL_DB"
	ClassRESTAPI      DataSourceClass = "REST_API"
	ClassSOAPAPI      DataSourceClass = "SOAP_API"
)

// ParameterKind is where a bound argument is placed in the underlying call.
type ParameterKind string

const (
	ParamPath       ParameterKind = "path"
	ParamQuery      ParameterKind = "query"
	ParamBody       ParameterKind = "body"
	ParamHeader     ParameterKind = "header"
	ParamPositional ParameterKind = "positional"
)

// SemanticType is the value type the LLM should bind for a parameter.
type SemanticType string

const (
	TypeString  SemanticType = "string"
	TypeInt     SemanticType = "int"
	TypeDecimal SemanticType = "decimal"
	TypeBool    SemanticType = "bool"
	TypeDate    SemanticType = "date"
	TypeObject  SemanticType = "object"
)

// Capability is a coarse verb a tool supports, reported by
// Descriptor.HasCapability. Registry ranking and the planner's heuristic
// path do not consult it.
type Capability string

const (
	CapRead       Capability = "read"
	CapWrite      Capability = "write"
	CapAggregate  Capability = "aggregate"
	CapLookupByID Capability = "lookup_by_id"
	CapSearch     Capability = "search"
)

// Parameter describes one argument a tool accepts.
type Parameter struct {
	Name         string
	Kind         ParameterKind
	SemanticType SemanticType
	Required     bool
	Default      any
	Description  string
}

// Descriptor is an immutable registry entry for one tool. Name is unique
// across the registry and DataSourceClass is immutable once registered
// (enforced by registry.ToolRegistry, not by this type).
type Descriptor struct {
	Name            string
	Description     string
	Keywords        []string
	DataSourceClass DataSourceClass
	ParameterSchema []Parameter
	Capabilities    []Capability
	Priority        int
	Invoke          InvokeFunc
}

// InvokeFunc binds arguments and calls the underlying backend. It must
// honor ctx cancellation and return promptly once ctx is done.
type InvokeFunc func(ctx context.Context, args map[string]any) (*Result, error)

// Result is the normalized output of a tool invocation.
type Result struct {
	// Rows is an ordered sequence of records. May be empty.
	Rows []map[string]any
	// Raw retains the unshaped response for the consolidator when the
	// structure is unknown (e.g. a scalar or nested document).
	Raw any
	// SourceTag identifies which tool produced this result; set to the
	// tool's Name by Descriptor.Call if the invoke func left it blank.
	SourceTag string
}

// ErrorCode enumerates the failure shapes a tool may report. These map onto
// errs.Kind at the agent boundary (see pkg/agentexec).
type ErrorCode string

const (
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"
)

// Error is the structured failure a tool returns instead of an opaque error.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// ToErrKind maps a tool error code to the shared errs.Kind taxonomy.
func (c ErrorCode) ToErrKind() errs.Kind {
	switch c {
	case ErrUnauthorized:
		return errs.KindUnauthorized
	case ErrNotFound:
		return errs.KindNotFound
	case ErrBadRequest:
		return errs.KindBadRequest
	case ErrTimeout:
		return errs.KindTimeout
	case ErrSchemaMismatch:
		return errs.KindSchemaMismatch
	default:
		return errs.KindUpstreamError
	}
}

// Call invokes the descriptor's bound function and normalizes a nil Result
// into an empty one, stamping SourceTag when the tool didn't set one.
func (d *Descriptor) Call(ctx context.Context, args map[string]any) (*Result, error) {
	if d.Invoke == nil {
		return nil, &Error{Code: ErrBadRequest, Message: "tool has no invoke binding"}
	}
	res, err := d.Invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	if res.SourceTag == "" {
		res.SourceTag = d.Name
	}
	return res, nil
}

// HasCapability reports whether the descriptor advertises cap.
func (d *Descriptor) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// SearchText is the text the registry embeds/tokenizes for ranking: name,
// description, and explicit keywords concatenated.
func (d *Descriptor) SearchText() string {
	text := d.Name + " " + d.Description
	for _, k := range d.Keywords {
		text += " " + k
	}
	return text
}
