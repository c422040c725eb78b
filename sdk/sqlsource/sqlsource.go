// Package sqlsource reads database/sql results into dalcore tabular results
// and binds prepared parameters as driver arguments.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/kent-id/dalcore"
	"github.com/kent-id/dalcore/types"
)

// Queryer is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ReadResult reads the current result set of rows. SQL NULL becomes
// types.DBNull; []byte values of text columns become strings.
func ReadResult(rows *sql.Rows) (types.TabularResult, error) {
	var out types.TabularResult
	cts, err := rows.ColumnTypes()
	if err != nil {
		return out, fmt.Errorf("read column types: %w", err)
	}
	out.Columns = make([]types.Column, len(cts))
	text := make([]bool, len(cts))
	for i, ct := range cts {
		typ := strings.ToLower(ct.DatabaseTypeName())
		out.Columns[i] = types.Column{Name: ct.Name(), Type: typ}
		text[i] = isTextType(typ)
	}

	out.Rows = make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(cts))
		dest := make([]any, len(cts))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return out, fmt.Errorf("scan row %d: %w", len(out.Rows), err)
		}
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				values[i] = types.DBNull
			case []byte:
				if text[i] {
					values[i] = string(val)
				}
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ReadResults reads every result set of rows and closes it.
func ReadResults(rows *sql.Rows) ([]types.TabularResult, error) {
	defer rows.Close()
	var out []types.TabularResult
	for {
		res, err := ReadResult(rows)
		if err != nil {
			return nil, fmt.Errorf("result set %d: %w", len(out), err)
		}
		out = append(out, res)
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	dalcore.LogDebugf("read %d result sets", len(out))
	return out, nil
}

func isTextType(typ string) bool {
	switch {
	case typ == "":
		return false
	case strings.Contains(typ, "char"), strings.Contains(typ, "text"),
		typ == "string", typ == "json", typ == "uuid", typ == "enum":
		return true
	}
	return false
}

// Query runs query with the parameters prepared from args (a model or
// []types.Parameter) and reads every result set.
func Query(ctx context.Context, engine *dalcore.Engine, q Queryer, query string, args any) ([]types.TabularResult, error) {
	b, err := prepare(engine, args)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return ReadResults(rows)
}

// QueryInto runs query and assembles its result sets with rules. A nil or
// missing model type reads that result set as runtime shape records.
func QueryInto(ctx context.Context, engine *dalcore.Engine, q Queryer, query string, args any, rules []dalcore.RelationshipRule, modelTypes ...reflect.Type) ([][]any, error) {
	engine = engineOrDefault(engine)
	results, err := Query(ctx, engine, q, query, args)
	if err != nil {
		return nil, err
	}
	return engine.Assemble(ctx, results, rules, modelTypes)
}

// Exec runs a statement with the parameters prepared from args and writes
// output parameter values back when args is a model pointer.
func Exec(ctx context.Context, engine *dalcore.Engine, x Execer, query string, args any) (sql.Result, error) {
	engine = engineOrDefault(engine)
	b, err := prepare(engine, args)
	if err != nil {
		return nil, err
	}
	res, err := x.ExecContext(ctx, query, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	if outs := b.Outputs(); len(outs) > 0 {
		if _, isParams := args.([]types.Parameter); !isParams {
			if err := engine.ApplyOutputs(args, outs); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// engineOrDefault lets callers pass a nil engine.
func engineOrDefault(engine *dalcore.Engine) *dalcore.Engine {
	if engine == nil {
		return dalcore.DefaultEngine()
	}
	return engine
}

func prepare(engine *dalcore.Engine, args any) (*Binding, error) {
	if args == nil {
		return Bind(nil), nil
	}
	params, err := engineOrDefault(engine).PrepareParameters(args)
	if err != nil {
		return nil, err
	}
	return Bind(params), nil
}
