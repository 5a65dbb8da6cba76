// ABOUTME: Lazy document sequences returned by find and aggregate
// ABOUTME: Includes a slice-backed cursor and drain helpers

package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Cursor is a lazy sequence of documents. Callers must Close it; an open
// cursor may hold the store's connection until then.
type Cursor interface {
	// Next advances to the next document and reports whether one exists.
	Next() bool
	// Decode unmarshals the current document into v.
	Decode(v interface{}) error
	// Err returns the error that stopped iteration, if any.
	Err() error
	Close() error
}

// All drains cur into a slice of T and closes it.
func All[T any](cur Cursor) (out []T, err error) {
	defer func() {
		if cerr := cur.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for cur.Next() {
		var v T
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, cur.Err()
}

// Documents drains cur into generic documents.
func Documents(cur Cursor) ([]Document, error) {
	return All[Document](cur)
}

// SliceCursor iterates over documents held in memory.
type SliceCursor struct {
	docs   []Document
	pos    int
	closed bool
}

// NewSliceCursor returns a cursor over docs.
func NewSliceCursor(docs []Document) *SliceCursor {
	return &SliceCursor{docs: docs, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

// Decode round-trips the current document through JSON so v may be any
// type a real engine cursor could decode into.
func (c *SliceCursor) Decode(v interface{}) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return errors.New("store: no current document")
	}
	raw, err := json.Marshal(c.docs[c.pos])
	if err != nil {
		return fmt.Errorf("store: encode document: %w", err)
	}
	return json.Unmarshal(raw, v)
}

func (c *SliceCursor) Err() error { return nil }

func (c *SliceCursor) Close() error {
	c.closed = true
	return nil
}
