// ABOUTME: Cursor over SQL rows carrying one JSON document each
// ABOUTME: Documents are decoded lazily as the caller iterates

package sqlstore

import (
	"database/sql"
	"encoding/json"
	"errors"
)

type rowsCursor struct {
	rows *sql.Rows
	cur  []byte
	err  error
}

func newRowsCursor(rows *sql.Rows) *rowsCursor {
	return &rowsCursor{rows: rows}
}

func (c *rowsCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var raw []byte
	if err := c.rows.Scan(&raw); err != nil {
		c.err = err
		return false
	}
	c.cur = raw
	return true
}

func (c *rowsCursor) Decode(v interface{}) error {
	if c.cur == nil {
		return errors.New("sqlstore: no current document")
	}
	return json.Unmarshal(c.cur, v)
}

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowsCursor) Close() error {
	return c.rows.Close()
}
