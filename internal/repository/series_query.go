package repository

import (
	"fmt"
	"strings"
	"time"

	"PriceServer/internal/domain/models"
)

const (
	tickColumns = "id, instrument_id, ts, toString(bid), toString(ask), ifNull(toString(volume), '')"
	ohlcColumns = "id, instrument_id, ts, toString(open), toString(high), toString(low), toString(close), ifNull(toString(volume), ''), timeframe, price_type"
)

// seriesQuery accumulates a WHERE clause over one series table. Timestamps are bound
// as unix nanoseconds so positional binding keeps sub-second precision.
type seriesQuery struct {
	table string
	conds []string
	args  []interface{}
}

func newSeriesQuery(table string, instrumentID int64, from, to *time.Time) *seriesQuery {
	q := &seriesQuery{table: table}
	q.where("instrument_id = ?", instrumentID)
	if from != nil {
		q.where("ts >= fromUnixTimestamp64Nano(toInt64(?), 'UTC')", from.UTC().UnixNano())
	}
	if to != nil {
		q.where("ts <= fromUnixTimestamp64Nano(toInt64(?), 'UTC')", to.UTC().UnixNano())
	}
	return q
}

func tickQuery(table string, f models.TickFilter) *seriesQuery {
	return newSeriesQuery(table, f.InstrumentID, f.From, f.To)
}

func ohlcQuery(table string, f models.OHLCFilter) *seriesQuery {
	q := newSeriesQuery(table, f.InstrumentID, f.From, f.To)
	if f.TimeFrame != "" {
		q.where("timeframe = ?", string(f.TimeFrame))
	}
	if f.PriceType != "" {
		q.where("price_type = ?", string(f.PriceType))
	}
	return q
}

func (q *seriesQuery) where(cond string, args ...interface{}) {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
}

// after restricts rows to those strictly after the cursor in (ts, id) order.
func (q *seriesQuery) after(c *models.Cursor) {
	if c == nil {
		return
	}
	ns := c.Timestamp.UTC().UnixNano()
	q.where("(ts > fromUnixTimestamp64Nano(toInt64(?), 'UTC') OR (ts = fromUnixTimestamp64Nano(toInt64(?), 'UTC') AND id > ?))",
		ns, ns, c.ID)
}

func (q *seriesQuery) whereClause() string {
	return strings.Join(q.conds, " AND ")
}

func (q *seriesQuery) count() (string, []interface{}) {
	return fmt.Sprintf("SELECT count() FROM %s WHERE %s", q.table, q.whereClause()), q.args
}

func (q *seriesQuery) page(columns string, limit, offset int) (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY ts ASC, id ASC LIMIT ? OFFSET ?",
		columns, q.table, q.whereClause())
	return sql, append(append([]interface{}{}, q.args...), limit, offset)
}

func (q *seriesQuery) scan(columns string, limit int) (string, []interface{}) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY ts ASC, id ASC LIMIT ?",
		columns, q.table, q.whereClause())
	return sql, append(append([]interface{}{}, q.args...), limit)
}
