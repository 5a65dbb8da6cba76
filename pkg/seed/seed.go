// ABOUTME: Book datasets loaded from YAML
// ABOUTME: Ships an embedded default collection and inserts records into a store

package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"

	"github.com/nainya/bookquery/pkg/book"
)

//go:embed books.yaml
var defaultBooks []byte

// Inserter is implemented by stores that can bulk-load documents.
type Inserter interface {
	InsertMany(ctx context.Context, docs []interface{}) ([]string, error)
}

// Load parses a YAML list of books. Titles must be present and unique.
func Load(r io.Reader) ([]book.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("seed: read: %w", err)
	}

	var records []book.Record
	if err := yaml.UnmarshalStrict(data, &records); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}

	seen := make(map[string]int, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("seed: record %d: %w", i, err)
		}
		if prev, dup := seen[r.Title]; dup {
			return nil, fmt.Errorf("seed: record %d: title %q already used by record %d", i, r.Title, prev)
		}
		seen[r.Title] = i
	}
	return records, nil
}

// Default returns the embedded dataset.
func Default() []book.Record {
	records, err := Load(bytes.NewReader(defaultBooks))
	if err != nil {
		panic(err)
	}
	return records
}

// Into inserts records and returns the ids the store assigned.
func Into(ctx context.Context, dst Inserter, records []book.Record) ([]string, error) {
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = r
	}
	ids, err := dst.InsertMany(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("seed: insert: %w", err)
	}
	return ids, nil
}
