package query

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseFilter(t *testing.T) {
	root, err := ParseFilter(Filter{
		"published_year": Cond{"$gte": 1900, "$lt": 2000},
		"genre":          "Fiction",
		"$or":            []Filter{{"author": "A"}, {"in_stock": true}},
	}, testSchema)
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}

	if root.Operator != LogicalAnd || len(root.Children) != 4 {
		t.Fatalf("Expected $and with 4 children, got %s with %d", root.Operator, len(root.Children))
	}

	or, ok := root.Children[0].(*LogicalNode)
	if !ok || or.Operator != LogicalOr || len(or.Children) != 2 {
		t.Fatalf("Expected $or first, got %#v", root.Children[0])
	}

	want := []*FieldNode{
		{Field: "genre", Operator: OpEq, Value: "Fiction"},
		{Field: "published_year", Operator: OpGte, Value: 1900},
		{Field: "published_year", Operator: OpLt, Value: 2000},
	}
	for i, w := range want {
		got, ok := root.Children[i+1].(*FieldNode)
		if !ok || !reflect.DeepEqual(got, w) {
			t.Errorf("Child %d: expected %+v, got %#v", i+1, w, root.Children[i+1])
		}
	}
}

func TestParseFilterNormalizesLists(t *testing.T) {
	root, err := ParseFilter(Filter{"genre": Cond{"$in": []string{"Fiction", "Fantasy"}}}, testSchema)
	if err != nil {
		t.Fatalf("ParseFilter failed: %v", err)
	}
	node := root.Children[0].(*FieldNode)
	if !reflect.DeepEqual(node.Value, []interface{}{"Fiction", "Fantasy"}) {
		t.Errorf("Expected []interface{} values, got %#v", node.Value)
	}
}

func TestParseFilterErrors(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
	}{
		{"unknown operator", Filter{"price": Cond{"$regex": "x"}}},
		{"unknown top-level operator", Filter{"$nor": []Filter{{"title": "x"}}}},
		{"empty condition", Filter{"price": Cond{}}},
		{"in requires list", Filter{"genre": Cond{"$in": "Fiction"}}},
		{"exists requires bool", Filter{"price": Cond{"$exists": 1}}},
		{"null ordering", Filter{"price": Cond{"$gt": nil}}},
		{"or requires list", Filter{"$or": Filter{"title": "x"}}},
		{"empty or", Filter{"$or": []Filter{}}},
		{"compare with list", Filter{"title": []interface{}{"a"}}},
		{"wrong kind", Filter{"in_stock": "yes"}},
		{"wrong kind in list", Filter{"published_year": In(1984, "1985")}},
		{"unknown field", Filter{"isbn": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFilter(tt.filter, testSchema); !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("Expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestParseFilterNullEquality(t *testing.T) {
	if _, err := ParseFilter(Filter{"genre": nil, "price": Ne(nil)}, testSchema); err != nil {
		t.Errorf("Null equality should be allowed: %v", err)
	}
}
