package sqlstore

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nainya/bookquery/pkg/query"
	"github.com/nainya/bookquery/pkg/store"
)

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter query.Filter
		want   string
		args   []interface{}
	}{
		{
			name:   "empty",
			filter: nil,
			want:   "1",
		},
		{
			name:   "equality",
			filter: query.Filter{"genre": "Fiction"},
			want:   "json_extract(doc, '$.genre') = ?",
			args:   []interface{}{"Fiction"},
		},
		{
			name:   "implicit and in key order",
			filter: query.Filter{"published_year": query.Gt(2010), "in_stock": true},
			want:   "(json_extract(doc, '$.in_stock') = ? AND json_extract(doc, '$.published_year') > ?)",
			args:   []interface{}{true, 2010},
		},
		{
			name:   "null equality",
			filter: query.Filter{"genre": nil},
			want:   "json_extract(doc, '$.genre') IS NULL",
		},
		{
			name:   "empty in matches nothing",
			filter: query.Filter{"genre": query.In()},
			want:   "0",
		},
		{
			name:   "nin keeps missing fields",
			filter: query.Filter{"genre": query.Nin("Fantasy")},
			want:   "(json_extract(doc, '$.genre') IS NULL OR json_extract(doc, '$.genre') NOT IN (?))",
			args:   []interface{}{"Fantasy"},
		},
		{
			name:   "exists",
			filter: query.Filter{"price": query.Exists(false)},
			want:   "json_type(doc, '$.price') IS NULL",
		},
		{
			name:   "or",
			filter: query.Or(query.Filter{"author": "A"}, query.Filter{"author": "B"}),
			want:   "(json_extract(doc, '$.author') = ? OR json_extract(doc, '$.author') = ?)",
			args:   []interface{}{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := compileFilter(tt.filter, "doc")
			if err != nil {
				t.Fatalf("compileFilter failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if len(args) != len(tt.args) || (len(args) > 0 && !reflect.DeepEqual(args, tt.args)) {
				t.Errorf("Expected args %v, got %v", tt.args, args)
			}
		})
	}
}

func TestCompileProjection(t *testing.T) {
	got := compileProjection(query.Projection{"_id": 0, "title": 1, "author": 1}, "doc")
	want := "json_object('author', doc -> '$.author', 'title', doc -> '$.title')"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}

	got = compileProjection(query.Projection{"price": 0}, "doc")
	if got != "json_remove(doc, '$.price')" {
		t.Errorf("Unexpected exclusion %q", got)
	}

	got = compileProjection(query.Projection{"_id": 1}, "doc")
	if got != "json_object('_id', doc -> '$._id')" {
		t.Errorf("Expected only _id, got %q", got)
	}

	got = compileProjection(query.Projection{"_id": 0}, "doc")
	if got != "json_remove(doc, '$._id')" {
		t.Errorf("Expected _id removed, got %q", got)
	}

	if got := compileProjection(nil, "doc"); got != "doc" {
		t.Errorf("Expected whole document, got %q", got)
	}
}

func TestCompileFind(t *testing.T) {
	s := &Store{table: "books"}
	stmt, args, err := s.compileFind(store.FindRequest{
		Filter: query.Filter{"author": "Paulo Coelho"},
		Sort:   []query.SortField{query.Desc("price")},
		Skip:   5,
	})
	if err != nil {
		t.Fatalf("compileFind failed: %v", err)
	}
	want := `SELECT doc FROM "books" WHERE json_extract(doc, '$.author') = ? ` +
		`ORDER BY json_extract(doc, '$.price') DESC, rowid LIMIT -1 OFFSET 5`
	if stmt != want {
		t.Errorf("Expected\n%s\ngot\n%s", want, stmt)
	}
	if len(args) != 1 || args[0] != "Paulo Coelho" {
		t.Errorf("Unexpected args %v", args)
	}
}

func TestCompilePipelineFolding(t *testing.T) {
	s := &Store{table: "books"}

	stmt, _, err := s.compilePipeline([]query.Stage{
		query.Match(query.Filter{"in_stock": true}),
		query.SortBy(query.Asc("price")),
		query.Limit(3),
	})
	if err != nil {
		t.Fatalf("compilePipeline failed: %v", err)
	}
	if strings.Count(stmt, "SELECT") != 1 {
		t.Errorf("Expected match, sort and limit in one SELECT, got %s", stmt)
	}

	stmt, args, err := s.compilePipeline([]query.Stage{
		query.Group(query.Field("author"), query.Sum("total", query.Lit(1))),
		query.SortBy(query.Desc("total")),
		query.Limit(1),
	})
	if err != nil {
		t.Fatalf("compilePipeline failed: %v", err)
	}
	if strings.Count(stmt, "SELECT") != 2 || !strings.HasSuffix(stmt, "LIMIT 1 OFFSET 0") {
		t.Errorf("Expected group wrapped by a sorted SELECT, got %s", stmt)
	}
	if len(args) != 1 {
		t.Errorf("Expected one bound literal, got %v", args)
	}

	stmt, args, err = s.compilePipeline([]query.Stage{
		query.Group(query.Floor(query.Divide(query.Field("published_year"), query.Lit(10)))),
	})
	if err != nil {
		t.Fatalf("compilePipeline failed: %v", err)
	}
	// The divisor is bound once per appearance in SELECT and GROUP BY.
	if len(args) != 6 || strings.Count(stmt, "?") != 6 {
		t.Errorf("Expected six placeholders, got %d args in %s", len(args), stmt)
	}
}

func TestDriverErrorsPassThrough(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := New(ctx, db, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	boom := errors.New("database is locked")
	mock.ExpectQuery("SELECT doc FROM").WillReturnError(boom)
	if _, err := s.Find(ctx, store.FindRequest{}); !errors.Is(err, boom) {
		t.Errorf("Expected find to wrap driver error, got %v", err)
	}

	mock.ExpectExec("DELETE FROM").WillReturnError(boom)
	if _, err := s.DeleteOne(ctx, store.DeleteRequest{Filter: query.Filter{"title": "1984"}}); !errors.Is(err, boom) {
		t.Errorf("Expected delete to wrap driver error, got %v", err)
	}

	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := s.UpdateOne(ctx, store.UpdateRequest{
		Filter: query.Filter{"title": "The Alchemist"},
		Update: query.Update{Set: map[string]interface{}{"price": 160}},
	})
	if err != nil || n != 1 {
		t.Errorf("UpdateOne = %d, %v", n, err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close on a borrowed handle should be a no-op, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
