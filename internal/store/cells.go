package store

import (
	"database/sql"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"relstore/internal/schema"
)

// TimeLayout is how timestamps are rendered into result cells.
const TimeLayout = "2006-01-02 15:04:05"

func scanRows(rows *sql.Rows) ([]string, []schema.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []schema.Row
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for rows.Next() {
		for i := range vals {
			vals[i] = nil
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(schema.Row, len(cols))
		for i, v := range vals {
			row[i] = toCell(v)
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

// toCell renders a driver value as text. Binary payloads that are not valid
// UTF-8 are base64 encoded.
func toCell(v any) sql.NullString {
	var s string
	switch x := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		s = x
	case []byte:
		if utf8.Valid(x) {
			s = string(x)
		} else {
			s = base64.StdEncoding.EncodeToString(x)
		}
	case int64:
		s = strconv.FormatInt(x, 10)
	case int32:
		s = strconv.FormatInt(int64(x), 10)
	case int:
		s = strconv.Itoa(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		s = strconv.FormatBool(x)
	case time.Time:
		s = x.Format(TimeLayout)
	default:
		s = fmt.Sprint(x)
	}
	return sql.NullString{String: s, Valid: true}
}
