// ABOUTME: DocumentStore contract consumed by the query catalog
// ABOUTME: Engine-native request types, index acknowledgements and explain reports

package store

import (
	"context"
	"time"

	"github.com/nainya/bookquery/pkg/query"
)

// Document is a decoded document of arbitrary shape.
type Document map[string]interface{}

// DocumentStore is the external engine the catalog dispatches to. Each
// method performs one round trip; implementations must be safe for
// concurrent use if callers share them.
type DocumentStore interface {
	Find(ctx context.Context, req FindRequest) (Cursor, error)
	UpdateOne(ctx context.Context, req UpdateRequest) (int64, error)
	DeleteOne(ctx context.Context, req DeleteRequest) (int64, error)
	Aggregate(ctx context.Context, req AggregateRequest) (Cursor, error)
	CreateIndex(ctx context.Context, req IndexRequest) (IndexAck, error)
	Explain(ctx context.Context, req FindRequest) (*ExplainReport, error)
}

// FindRequest selects documents. Limit 0 means no limit.
type FindRequest struct {
	Filter     query.Filter
	Projection query.Projection
	Sort       []query.SortField
	Skip       int
	Limit      int
}

// UpdateRequest modifies the first document matching Filter.
type UpdateRequest struct {
	Filter query.Filter
	Update query.Update
}

// DeleteRequest removes the first document matching Filter.
type DeleteRequest struct {
	Filter query.Filter
}

// AggregateRequest runs a pipeline over the collection.
type AggregateRequest struct {
	Pipeline []query.Stage
}

// IndexRequest creates an index.
type IndexRequest struct {
	Keys    []query.IndexKey
	Options query.IndexOptions
}

// IndexAck acknowledges index creation. Created is false when an index with
// the same name already existed.
type IndexAck struct {
	Name    string
	Created bool
}

// Scan stages reported by Explain.
const (
	StageCollScan  = "COLLSCAN"
	StageIndexScan = "IXSCAN"
)

// ExplainReport describes how the engine plans and executes a find.
type ExplainReport struct {
	Collection   string
	Statement    string        // Engine-native statement
	Plan         []string      // Plan steps as reported by the engine
	Stage        string        // COLLSCAN or IXSCAN
	Index        string        // Index used, if any
	DocsReturned int64         // Documents produced by the execution pass
	Duration     time.Duration // Execution time of that pass
}
