package athena

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/kent-id/dalcore"
	"github.com/kent-id/dalcore/types"
	"github.com/kent-id/dalcore/util"
	"github.com/shopspring/decimal"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
)

// FromResultSet converts one athena result page into a TabularResult.
// The header row must already be removed. Column types keep athena's names.
func FromResultSet(rs *athenatypes.ResultSet) (types.TabularResult, error) {
	var out types.TabularResult
	if rs == nil {
		return out, nil
	}
	var infos []athenatypes.ColumnInfo
	if rs.ResultSetMetadata != nil {
		infos = rs.ResultSetMetadata.ColumnInfo
	}
	out.Columns = make([]types.Column, len(infos))
	for i, ci := range infos {
		out.Columns[i] = types.Column{Name: util.SafeString(ci.Name), Type: util.SafeString(ci.Type)}
	}
	if len(infos) > 0 {
		out.TableName = util.SafeString(infos[0].TableName)
	}

	out.Rows = make([][]any, 0, len(rs.Rows))
	for r, row := range rs.Rows {
		if len(row.Data) != len(out.Columns) {
			return out, fmt.Errorf("row %d has %d values, result has %d columns", r, len(row.Data), len(out.Columns))
		}
		values := make([]any, len(row.Data))
		for i, datum := range row.Data {
			v, err := castAthenaRowData(datum, out.Columns[i].Type)
			if err != nil {
				return out, fmt.Errorf("row %d column %q (%s): %w", r, out.Columns[i].Name, out.Columns[i].Type, err)
			}
			values[i] = v
		}
		out.Rows = append(out.Rows, values)
	}
	return out, nil
}

// castAthenaRowData parses one athena value. A missing value is a database null;
// an empty varchar is an empty string.
func castAthenaRowData(rowData athenatypes.Datum, athenaType string) (any, error) {
	if rowData.VarCharValue == nil {
		return types.DBNull, nil
	}
	data := *rowData.VarCharValue

	// for supported data types, see https://docs.aws.amazon.com/athena/latest/ug/data-types.html
	switch athenaType {
	case "boolean":
		return strconv.ParseBool(data)
	case "tinyint":
		v, err := strconv.ParseInt(data, 10, 8)
		return int8(v), err
	case "smallint":
		v, err := strconv.ParseInt(data, 10, 16)
		return int16(v), err
	case "integer", "int":
		v, err := strconv.ParseInt(data, 10, 32)
		return int32(v), err
	case "bigint":
		return strconv.ParseInt(data, 10, 64)
	case "double":
		return strconv.ParseFloat(data, 64)
	case "float", "real":
		v, err := strconv.ParseFloat(data, 32)
		return float32(v), err
	case "decimal":
		return decimal.NewFromString(data)
	case "varbinary":
		return []byte(data), nil
	case "array":
		arrayValueString := strings.Trim(data, "[]")
		if len(arrayValueString) == 0 {
			return make([]string, 0), nil
		}
		return strings.Split(arrayValueString, ", "), nil
	case "timestamp":
		return time.Parse(timestampLayout, data)
	case "date":
		return time.Parse(dateLayout, data)
	case "varchar", "char", "string":
		return data, nil
	default:
		dalcore.LogWarnf("athena data type '%s' not supported, defaulting to string: if this is intended consider doing conversion in SQL to be explicit", athenaType)
		return data, nil
	}
}
