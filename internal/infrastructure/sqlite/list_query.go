package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/martijn/sitecalm/internal/api/util"
)

// datetimeFields hold timestamps; their filter values are normalized
// before the string comparison SQLite does on them.
var datetimeFields = map[string]bool{
	"start_time":  true,
	"end_time":    true,
	"created_at":  true,
	"started_at":  true,
	"finished_at": true,
}

var comparisons = map[util.Operator]string{
	util.OpEq:  "=",
	util.OpNe:  "!=",
	util.OpGt:  ">",
	util.OpGte: ">=",
	util.OpLt:  "<",
	util.OpLte: "<=",
}

var dateTimeInputs = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// normalizeDateTime turns "2025-11-24T00:00" and friends into
// "2025-11-24 00:00:00", the space-separated UTC form modernc/sqlite writes.
// Unparseable input is returned unchanged.
func normalizeDateTime(value string) string {
	for _, layout := range dateTimeInputs {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05")
		}
	}
	return value
}

// listQuery collects the WHERE terms and bind args of a list statement.
// Field names have already been checked against a util.ListSchema.
type listQuery struct {
	where []string
	args  []interface{}
}

func newListQuery(conditions []util.Condition) *listQuery {
	q := &listQuery{}
	for _, c := range conditions {
		q.add(c)
	}
	return q
}

func (q *listQuery) add(c util.Condition) {
	values := make([]interface{}, len(c.Values))
	for i, v := range c.Values {
		if datetimeFields[c.Field] {
			v = normalizeDateTime(v)
		}
		values[i] = v
	}

	switch c.Op {
	case util.OpIsNull:
		q.where = append(q.where, c.Field+" IS NULL")
	case util.OpIsNotNull:
		q.where = append(q.where, c.Field+" IS NOT NULL")
	case util.OpIn, util.OpNin:
		if len(values) == 0 {
			return
		}
		keyword := "IN"
		if c.Op == util.OpNin {
			keyword = "NOT IN"
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		q.where = append(q.where, fmt.Sprintf("%s %s (%s)", c.Field, keyword, marks))
		q.args = append(q.args, values...)
	default:
		op, ok := comparisons[c.Op]
		if !ok || len(values) != 1 {
			return
		}
		q.where = append(q.where, fmt.Sprintf("%s %s ?", c.Field, op))
		q.args = append(q.args, values[0])
	}
}

func (q *listQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

// orderSQL falls back to fallback when no sort keys were requested.
func orderSQL(keys []util.SortKey, fallback string) string {
	if len(keys) == 0 {
		return " ORDER BY " + fallback
	}
	terms := make([]string, len(keys))
	for i, k := range keys {
		dir := "ASC"
		if k.Desc {
			dir = "DESC"
		}
		terms[i] = k.Field + " " + dir
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

// pageSQL appends LIMIT and OFFSET args for the requested page.
func (q *listQuery) pageSQL(f util.ListFilter) string {
	if f.PerPage <= 0 {
		return ""
	}
	q.args = append(q.args, f.PerPage, f.Offset())
	return " LIMIT ? OFFSET ?"
}
