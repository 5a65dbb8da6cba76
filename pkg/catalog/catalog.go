// ABOUTME: Named registry of query definitions with single-call dispatch
// ABOUTME: Translates a definition into one engine-native request per execution

package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nainya/bookquery/pkg/query"
	"github.com/nainya/bookquery/pkg/store"
)

// Catalog maps query names to validated definitions.
type Catalog struct {
	mu     sync.RWMutex
	schema query.Schema
	defs   map[string]query.Definition
}

// Result carries what the store returned for one execution. Cursor is set
// for find and aggregate, Count for update and delete, Index for
// createIndex. Cursor is returned unread and the caller must close it.
type Result struct {
	Kind   query.Kind
	Cursor store.Cursor
	Count  int64
	Index  store.IndexAck
}

// Entry describes one registered query.
type Entry struct {
	Name        string
	Kind        query.Kind
	Description string
}

// New creates an empty catalog whose definitions are checked against schema.
func New(schema query.Schema) *Catalog {
	return &Catalog{
		schema: schema.Clone(),
		defs:   make(map[string]query.Definition),
	}
}

// Register adds a definition under name. An existing registration with the
// same name is left untouched.
func (c *Catalog) Register(name string, def query.Definition) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty query name", ErrInvalidDefinition)
	}
	if err := def.Validate(c.schema); err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.defs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	c.defs[name] = def
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(name string, def query.Definition) {
	if err := c.Register(name, def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered under name.
func (c *Catalog) Lookup(name string) (query.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[name]
	return def, ok
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries lists every registration in name order.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.defs))
	for name, def := range c.defs {
		entries = append(entries, Entry{Name: name, Kind: def.Kind(), Description: def.Description()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Len returns the number of registrations.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

// Execute looks up name, translates its definition and forwards it to the
// matching store capability. Store errors are returned unchanged.
func (c *Catalog) Execute(ctx context.Context, name string, st store.DocumentStore) (*Result, error) {
	def, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	res := &Result{Kind: def.Kind()}
	var err error
	switch def.Kind() {
	case query.KindFind:
		res.Cursor, err = st.Find(ctx, FindRequest(def))
	case query.KindUpdate:
		res.Count, err = st.UpdateOne(ctx, store.UpdateRequest{Filter: def.Criteria(), Update: *def.Update()})
	case query.KindDelete:
		res.Count, err = st.DeleteOne(ctx, store.DeleteRequest{Filter: def.Criteria()})
	case query.KindAggregate:
		res.Cursor, err = st.Aggregate(ctx, store.AggregateRequest{Pipeline: def.Pipeline()})
	case query.KindCreateIndex:
		res.Index, err = st.CreateIndex(ctx, store.IndexRequest{Keys: def.Keys(), Options: def.IndexOptions()})
	default:
		return nil, fmt.Errorf("%w: %q has kind %s", ErrInvalidDefinition, name, def.Kind())
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Explain asks the store how it would run the find query registered under
// name.
func (c *Catalog) Explain(ctx context.Context, name string, st store.DocumentStore) (*store.ExplainReport, error) {
	def, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if def.Kind() != query.KindFind {
		return nil, fmt.Errorf("%w: %q is a %s query", ErrNotExplainable, name, def.Kind())
	}
	return st.Explain(ctx, FindRequest(def))
}

// FindRequest translates a find definition into a store request.
func FindRequest(def query.Definition) store.FindRequest {
	return store.FindRequest{
		Filter:     def.Criteria(),
		Projection: def.Projection(),
		Sort:       def.Sort(),
		Skip:       def.Skip(),
		Limit:      def.Limit(),
	}
}
