// ABOUTME: Tests for catalog registration and dispatch
// ABOUTME: Uses a recording store to observe the requests sent to the engine

package catalog

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/nainya/bookquery/pkg/book"
	"github.com/nainya/bookquery/pkg/query"
	"github.com/nainya/bookquery/pkg/store"
)

// recordingStore captures every request and returns canned results.
type recordingStore struct {
	mu       sync.Mutex
	calls    []string
	finds    []store.FindRequest
	updates  []store.UpdateRequest
	deletes  []store.DeleteRequest
	aggs     []store.AggregateRequest
	indexes  []store.IndexRequest
	explains []store.FindRequest

	docs     []store.Document
	modified int64
	ack      store.IndexAck
	err      error
}

func (r *recordingStore) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingStore) Find(ctx context.Context, req store.FindRequest) (store.Cursor, error) {
	r.record("find")
	r.finds = append(r.finds, req)
	if r.err != nil {
		return nil, r.err
	}
	return store.NewSliceCursor(r.docs), nil
}

func (r *recordingStore) UpdateOne(ctx context.Context, req store.UpdateRequest) (int64, error) {
	r.record("updateOne")
	r.updates = append(r.updates, req)
	return r.modified, r.err
}

func (r *recordingStore) DeleteOne(ctx context.Context, req store.DeleteRequest) (int64, error) {
	r.record("deleteOne")
	r.deletes = append(r.deletes, req)
	return r.modified, r.err
}

func (r *recordingStore) Aggregate(ctx context.Context, req store.AggregateRequest) (store.Cursor, error) {
	r.record("aggregate")
	r.aggs = append(r.aggs, req)
	if r.err != nil {
		return nil, r.err
	}
	return store.NewSliceCursor(r.docs), nil
}

func (r *recordingStore) CreateIndex(ctx context.Context, req store.IndexRequest) (store.IndexAck, error) {
	r.record("createIndex")
	r.indexes = append(r.indexes, req)
	return r.ack, r.err
}

func (r *recordingStore) Explain(ctx context.Context, req store.FindRequest) (*store.ExplainReport, error) {
	r.record("explain")
	r.explains = append(r.explains, req)
	if r.err != nil {
		return nil, r.err
	}
	return &store.ExplainReport{Stage: store.StageCollScan}, nil
}

func newTestCatalog() *Catalog {
	return New(book.Schema())
}

func TestRegisterDuplicateName(t *testing.T) {
	c := newTestCatalog()

	first := query.NewFind().Where(book.FieldGenre, "Fiction").MustBuild()
	second := query.NewFind().Where(book.FieldGenre, "Poetry").MustBuild()

	if err := c.Register("by_genre", first); err != nil {
		t.Fatalf("First register failed: %v", err)
	}

	err := c.Register("by_genre", second)
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("Expected ErrDuplicateName, got %v", err)
	}

	got, ok := c.Lookup("by_genre")
	if !ok {
		t.Fatal("First registration lost")
	}
	if got.Criteria()[book.FieldGenre] != "Fiction" {
		t.Errorf("First registration replaced: %v", got.Criteria())
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 registration, got %d", c.Len())
	}
}

func TestRegisterRejectsInvalidDefinitions(t *testing.T) {
	c := newTestCatalog()

	cases := map[string]query.Definition{
		"zero value":       {},
		"unknown field":    query.NewFind().Where("isbn", "123").MustBuild(),
		"fractional year":  query.NewFind().Where(book.FieldPublishedYear, query.Gt(2010.5)).MustBuild(),
		"string year":      query.NewFind().Where(book.FieldPublishedYear, "2010").MustBuild(),
		"bool as string":   query.NewFind().Where(book.FieldInStock, "yes").MustBuild(),
		"set wrong type":   query.NewUpdate().Where(book.FieldTitle, "x").Set(book.FieldPrice, "free").MustBuild(),
		"unknown sort":     query.NewFind().OrderBy("rating", query.Descending).MustBuild(),
		"unknown index":    query.NewCreateIndex().Key("isbn", query.Ascending).MustBuild(),
		"group bad ref":    query.NewAggregate(query.Group(query.Field("publisher"))).MustBuild(),
		"sort after group": query.NewAggregate(query.Group(query.Field("genre")), query.SortBy(query.Asc("price"))).MustBuild(),
	}

	for name, def := range cases {
		if err := c.Register(name, def); !errors.Is(err, ErrInvalidDefinition) {
			t.Errorf("%s: expected ErrInvalidDefinition, got %v", name, err)
		}
	}
	if c.Len() != 0 {
		t.Errorf("Expected no registrations, got %d", c.Len())
	}

	if err := c.Register("  ", query.NewFind().MustBuild()); !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("Expected ErrInvalidDefinition for blank name, got %v", err)
	}
}

func TestExecuteUnknownName(t *testing.T) {
	c := newTestCatalog()
	st := &recordingStore{}

	_, err := c.Execute(context.Background(), "missing", st)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if len(st.calls) != 0 {
		t.Errorf("Expected no store calls, got %v", st.calls)
	}
}

func TestExecuteFindForwardsCriteria(t *testing.T) {
	c := newTestCatalog()
	c.MustRegister("fiction", query.NewFind().Where("genre", "Fiction").MustBuild())

	st := &recordingStore{docs: []store.Document{{"title": "The Alchemist", "genre": "Fiction"}}}
	res, err := c.Execute(context.Background(), "fiction", st)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(st.finds) != 1 {
		t.Fatalf("Expected 1 find call, got %d", len(st.finds))
	}
	want := query.Filter{"genre": "Fiction"}
	if !reflect.DeepEqual(st.finds[0].Filter, want) {
		t.Errorf("Expected filter %v, got %v", want, st.finds[0].Filter)
	}

	if res.Kind != query.KindFind {
		t.Errorf("Expected find result, got %s", res.Kind)
	}
	books, err := store.All[book.Record](res.Cursor)
	if err != nil {
		t.Fatalf("Drain cursor: %v", err)
	}
	if len(books) != 1 || books[0].Title != "The Alchemist" {
		t.Errorf("Unexpected books: %+v", books)
	}
}

func TestExecuteFindForwardsOptions(t *testing.T) {
	c := newTestCatalog()
	c.MustRegister("page", query.NewFind().
		Where(book.FieldPublishedYear, query.Gt(2010)).
		Select(book.FieldTitle).
		OrderBy(book.FieldPrice, query.Descending).
		Page(2, 5).
		MustBuild())

	st := &recordingStore{}
	if _, err := c.Execute(context.Background(), "page", st); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	req := st.finds[0]
	if !reflect.DeepEqual(req.Filter, query.Filter{"published_year": query.Cond{"$gt": 2010}}) {
		t.Errorf("Unexpected filter %v", req.Filter)
	}
	if !reflect.DeepEqual(req.Projection, query.Projection{"title": 1}) {
		t.Errorf("Unexpected projection %v", req.Projection)
	}
	if !reflect.DeepEqual(req.Sort, []query.SortField{{Field: "price", Direction: query.Descending}}) {
		t.Errorf("Unexpected sort %v", req.Sort)
	}
	if req.Skip != 5 || req.Limit != 5 {
		t.Errorf("Expected skip 5 limit 5, got %d/%d", req.Skip, req.Limit)
	}
}

func TestExecuteUpdateReturnsCount(t *testing.T) {
	c := newTestCatalog()
	c.MustRegister("reprice", query.NewUpdate().
		Where("title", "The Alchemist").
		Set("price", 160).
		MustBuild())

	st := &recordingStore{modified: 1}
	res, err := c.Execute(context.Background(), "reprice", st)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Expected count 1, got %d", res.Count)
	}

	req := st.updates[0]
	if !reflect.DeepEqual(req.Filter, query.Filter{"title": "The Alchemist"}) {
		t.Errorf("Unexpected filter %v", req.Filter)
	}
	if !reflect.DeepEqual(req.Update.Set, map[string]interface{}{"price": 160}) {
		t.Errorf("Unexpected update %v", req.Update.Set)
	}

	st.modified = 0
	res, err = c.Execute(context.Background(), "reprice", st)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Count != 0 {
		t.Errorf("Expected count 0, got %d", res.Count)
	}
}

func TestExecuteDelete(t *testing.T) {
	c := newTestCatalog()
	c.MustRegister("drop_1984", query.NewDelete().Where("title", "1984").MustBuild())

	st := &recordingStore{modified: 1}
	res, err := c.Execute(context.Background(), "drop_1984", st)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Count != 1 || res.Kind != query.KindDelete {
		t.Errorf("Unexpected result %+v", res)
	}
	if !reflect.DeepEqual(st.calls, []string{"deleteOne"}) {
		t.Errorf("Unexpected calls %v", st.calls)
	}
}

func TestExecuteCreateIndexForwardsKeys(t *testing.T) {
	c := newTestCatalog()
	c.MustRegister("author_year", query.NewCreateIndex().
		Key("author", query.Ascending).
		Key("published_year", query.Descending).
		MustBuild())

	st := &recordingStore{ack: store.IndexAck{Name: "books_author_1_published_year_-1", Created: true}}
	res, err := c.Execute(context.Background(), "author_year", st)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []query.IndexKey{
		{Field: "author", Direction: query.Ascending},
		{Field: "published_year", Direction: query.Descending},
	}
	if !reflect.DeepEqual(st.indexes[0].Keys, want) {
		t.Errorf("Expected keys %v, got %v", want, st.indexes[0].Keys)
	}
	if res.Index != st.ack {
		t.Errorf("Expected ack %+v, got %+v", st.ack, res.Index)
	}
}

func TestCreateIndexRequiresKeys(t *testing.T) {
	_, err := query.NewCreateIndex().Build()
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("Expected ErrInvalidDefinition, got %v", err)
	}
}

func TestExecuteAggregateForwardsPipeline(t *testing.T) {
	c := newTestCatalog()
	c.MustRegister("avg", query.NewAggregate(
		query.Group(query.Field("genre"), query.Avg("average_price", query.Field("price"))),
	).MustBuild())

	st := &recordingStore{docs: []store.Document{{"_id": "Fiction", "average_price": 12.5}}}
	res, err := c.Execute(context.Background(), "avg", st)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	stages := st.aggs[0].Pipeline
	if len(stages) != 1 || stages[0].StageName() != "$group" {
		t.Fatalf("Unexpected pipeline %v", stages)
	}

	docs, err := store.Documents(res.Cursor)
	if err != nil {
		t.Fatalf("Drain cursor: %v", err)
	}
	if len(docs) != 1 || docs[0]["_id"] != "Fiction" {
		t.Errorf("Unexpected documents %v", docs)
	}
}

func TestExecuteTwiceMakesIndependentCalls(t *testing.T) {
	c := newTestCatalog()
	c.MustRegister("after_2010", query.NewFind().
		Where("published_year", query.Gt(2010)).
		Where("in_stock", true).
		MustBuild())

	st := &recordingStore{}
	for i := 0; i < 2; i++ {
		if _, err := c.Execute(context.Background(), "after_2010", st); err != nil {
			t.Fatalf("Execute %d failed: %v", i, err)
		}
	}

	if len(st.finds) != 2 {
		t.Fatalf("Expected 2 find calls, got %d", len(st.finds))
	}
	if !reflect.DeepEqual(st.finds[0], st.finds[1]) {
		t.Errorf("Requests differ: %v vs %v", st.finds[0], st.finds[1])
	}

	// A store mutating its request must not leak into the next execution.
	st.finds[0].Filter["published_year"] = 1900
	if _, err := c.Execute(context.Background(), "after_2010", st); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !reflect.DeepEqual(st.finds[2], st.finds[1]) {
		t.Errorf("Definition was mutated through a request: %v", st.finds[2])
	}
}

func TestExecuteSurfacesStoreError(t *testing.T) {
	c := newTestCatalog()
	c.MustRegister("fiction", query.NewFind().Where("genre", "Fiction").MustBuild())
	c.MustRegister("reprice", query.NewUpdate().Where("title", "x").Set("price", 1).MustBuild())

	boom := errors.New("connection reset")
	st := &recordingStore{err: boom}

	for _, name := range []string{"fiction", "reprice"} {
		_, err := c.Execute(context.Background(), name, st)
		if err != boom {
			t.Errorf("%s: expected store error unchanged, got %v", name, err)
		}
	}
	if len(st.calls) != 2 {
		t.Errorf("Expected exactly one call per execution, got %v", st.calls)
	}
}

func TestExplain(t *testing.T) {
	c := Bookstore()
	st := &recordingStore{}

	report, err := c.Explain(context.Background(), FindAlchemist, st)
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	if report.Stage != store.StageCollScan {
		t.Errorf("Unexpected stage %q", report.Stage)
	}
	if !reflect.DeepEqual(st.explains[0].Filter, query.Filter{"title": "The Alchemist"}) {
		t.Errorf("Unexpected filter %v", st.explains[0].Filter)
	}

	if _, err := c.Explain(context.Background(), IndexTitle, st); !errors.Is(err, ErrNotExplainable) {
		t.Errorf("Expected ErrNotExplainable, got %v", err)
	}
	if _, err := c.Explain(context.Background(), "missing", st); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentExecute(t *testing.T) {
	c := Bookstore()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := &recordingStore{}
			if _, err := c.Execute(context.Background(), FictionBooks, st); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent execute failed: %v", err)
	}
}
