package sqltool

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflowhq/queryflow/pkg/tool"
)

func newMockQuery() Query {
	return Query{
		Name:        "lookup_alert_by_id",
		Description: "look up an alert by id",
		Statement:   "SELECT alert_id, status FROM alerts WHERE alert_id = $1",
		ParameterSchema: []tool.Parameter{
			{Name: "alert_id", Kind: tool.ParamPositional, SemanticType: tool.TypeString, Required: true},
		},
		Capabilities: []tool.Capability{tool.CapLookupByID},
	}
}

func TestTool_InvokeReturnsNormalizedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"alert_id", "status"}).AddRow("A123456", "open")
	mock.ExpectQuery("SELECT alert_id, status FROM alerts WHERE alert_id = \\$1").
		WithArgs("A123456").
		WillReturnRows(rows)

	tl := New(db)
	d := tl.Descriptor(newMockQuery())

	result, err := d.Invoke(context.Background(), map[string]any{"alert_id": "A123456"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "A123456", result.Rows[0]["alert_id"])
	assert.Equal(t, "open", result.Rows[0]["status"])
	assert.Equal(t, "lookup_alert_by_id", result.SourceTag)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTool_InvokeMissingRequiredParameterReturnsBadRequest(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tl := New(db)
	d := tl.Descriptor(newMockQuery())

	_, err = d.Invoke(context.Background(), map[string]any{})
	var toolErr *tool.Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.ErrBadRequest, toolErr.Code)
}

func TestTool_InvokeNoRowsReturnsEmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT alert_id, status FROM alerts WHERE alert_id = \\$1").
		WithArgs("A000000").
		WillReturnRows(sqlmock.NewRows([]string{"alert_id", "status"}))

	tl := New(db)
	d := tl.Descriptor(newMockQuery())

	result, err := d.Invoke(context.Background(), map[string]any{"alert_id": "A000000"})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestTool_InvokeQueryErrorReturnsUpstream(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT alert_id, status FROM alerts WHERE alert_id = \\$1").
		WithArgs("A999999").
		WillReturnError(assertAnError{})

	tl := New(db)
	d := tl.Descriptor(newMockQuery())

	_, err = d.Invoke(context.Background(), map[string]any{"alert_id": "A999999"})
	var toolErr *tool.Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.ErrUpstream, toolErr.Code)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "connection refused" }
