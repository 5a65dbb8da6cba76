package catalog

import (
	"context"
	"reflect"
	"testing"

	"github.com/nainya/bookquery/pkg/query"
)

func TestBookstoreRegistersEveryQuery(t *testing.T) {
	c := Bookstore()

	want := map[string]query.Kind{
		FictionBooks:         query.KindFind,
		PublishedAfter2010:   query.KindFind,
		BooksByPauloCoelho:   query.KindFind,
		UpdateAlchemistPrice: query.KindUpdate,
		Delete1984:           query.KindDelete,
		InStockAfter2010:     query.KindFind,
		TitleAuthorPrice:     query.KindFind,
		SortPriceAsc:         query.KindFind,
		SortPriceDesc:        query.KindFind,
		Page1:                query.KindFind,
		Page2:                query.KindFind,
		AvgPriceByGenre:      query.KindAggregate,
		TopAuthor:            query.KindAggregate,
		BooksPerDecade:       query.KindAggregate,
		IndexTitle:           query.KindCreateIndex,
		IndexAuthorYear:      query.KindCreateIndex,
		FindAlchemist:        query.KindFind,
	}

	if c.Len() != len(want) {
		t.Errorf("Expected %d queries, got %d: %v", len(want), c.Len(), c.Names())
	}
	for name, kind := range want {
		def, ok := c.Lookup(name)
		if !ok {
			t.Errorf("Missing query %q", name)
			continue
		}
		if def.Kind() != kind {
			t.Errorf("%s: expected %s, got %s", name, kind, def.Kind())
		}
		if def.Description() == "" {
			t.Errorf("%s: missing description", name)
		}
	}
}

func TestBookstorePagination(t *testing.T) {
	c := Bookstore()
	st := &recordingStore{}

	for _, name := range []string{Page1, Page2} {
		if _, err := c.Execute(context.Background(), name, st); err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
	}

	if st.finds[0].Skip != 0 || st.finds[0].Limit != PageSize {
		t.Errorf("Page 1: got skip %d limit %d", st.finds[0].Skip, st.finds[0].Limit)
	}
	if st.finds[1].Skip != PageSize || st.finds[1].Limit != PageSize {
		t.Errorf("Page 2: got skip %d limit %d", st.finds[1].Skip, st.finds[1].Limit)
	}
}

func TestBookstoreProjection(t *testing.T) {
	c := Bookstore()
	st := &recordingStore{}

	if _, err := c.Execute(context.Background(), TitleAuthorPrice, st); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := query.Projection{"_id": 0, "title": 1, "author": 1, "price": 1}
	if !reflect.DeepEqual(st.finds[0].Projection, want) {
		t.Errorf("Expected projection %v, got %v", want, st.finds[0].Projection)
	}
}

func TestEntriesSorted(t *testing.T) {
	entries := Bookstore().Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Name >= entries[i].Name {
			t.Fatalf("Entries not sorted at %d: %s >= %s", i, entries[i-1].Name, entries[i].Name)
		}
	}
}
