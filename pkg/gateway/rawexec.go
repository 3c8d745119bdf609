package gateway

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/gatekit-db/gatekit/pkg/gateway/rawquery"
)

// RawExecutor runs whitelist-guarded textual queries against the store.
type RawExecutor struct {
	connector *Connector
	debug     *DebugContext
}

// NewRawExecutor creates an executor over the given connection.
func NewRawExecutor(connector *Connector) *RawExecutor {
	return &RawExecutor{connector: connector, debug: DefaultDebugContext()}
}

// WithDebug sets the debug context and returns the executor.
func (ex *RawExecutor) WithDebug(debug *DebugContext) *RawExecutor {
	if debug != nil {
		ex.debug = debug
	}
	return ex
}

// Query checks the text against the whitelist, executes it, and truncates
// the result to the configured row cap. Store failures are logged with
// their detail but surfaced as an opaque error: internals never leak to
// the caller of a raw query.
func (ex *RawExecutor) Query(ctx context.Context, wl *rawquery.Whitelist, query string, args ...interface{}) ([]Row, error) {
	if err := wl.Check(query); err != nil {
		return nil, err
	}

	ex.debug.SQLf("[SQL] %s", query)

	rows, err := ex.connector.Pool().Query(ctx, query, args...)
	if err != nil {
		ex.debug.Tracef("[TRACE] raw query failed: %v", err)
		return nil, &FatalError{Op: "raw query", Err: err}
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		ex.debug.Tracef("[TRACE] raw query scan failed: %v", err)
		return nil, &FatalError{Op: "raw query", Err: err}
	}

	// Post-execution cap: a defense against unbounded result sets, not a
	// substitute for query-level limits.
	if wl.MaxRows > 0 && len(result) > wl.MaxRows {
		result = result[:wl.MaxRows]
	}
	return result, nil
}

// scanRows converts pgx rows into the gateway Row type.
func scanRows(rows pgx.Rows) ([]Row, error) {
	var result []Row
	columns := rows.FieldDescriptions()

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col.Name] = values[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
