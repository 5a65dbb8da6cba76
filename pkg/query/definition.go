// ABOUTME: Immutable query definitions and their shape validation
// ABOUTME: Definitions are checked at construction and against a schema at registration

package query

import (
	"reflect"
	"regexp"
)

// Parts holds the raw attributes of a definition. Which attributes may be
// set depends on the Kind passed to New.
type Parts struct {
	Description string
	Criteria    Filter
	Projection  Projection
	Sort        []SortField
	Skip        int
	Limit       int
	Update      *Update
	Pipeline    []Stage
	Keys        []IndexKey
	Index       IndexOptions
}

// Definition is an immutable, validated query description. The zero value
// is not a valid definition.
type Definition struct {
	kind        Kind
	description string
	criteria    Filter
	projection  Projection
	sort        []SortField
	skip        int
	limit       int
	update      *Update
	pipeline    []Stage
	keys        []IndexKey
	index       IndexOptions
}

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// New validates p against the shape required by kind and returns a
// definition holding private copies of every attribute. Field existence and
// value kinds, such as an integral published_year, are checked later by
// Validate against the collection schema.
func New(kind Kind, p Parts) (Definition, error) {
	if err := checkShape(kind, p); err != nil {
		return Definition{}, err
	}

	d := Definition{
		kind:        kind,
		description: p.Description,
		criteria:    cloneFilter(p.Criteria),
		projection:  cloneProjection(p.Projection),
		sort:        append([]SortField(nil), p.Sort...),
		skip:        p.Skip,
		limit:       p.Limit,
		update:      cloneUpdate(p.Update),
		keys:        append([]IndexKey(nil), p.Keys...),
		index:       p.Index,
	}
	if len(p.Pipeline) > 0 {
		d.pipeline = make([]Stage, len(p.Pipeline))
		for i, st := range p.Pipeline {
			d.pipeline[i] = cloneStage(st)
		}
	}
	return d, nil
}

func checkShape(kind Kind, p Parts) error {
	hasUpdate := p.Update != nil
	hasFindOpts := len(p.Projection) > 0 || len(p.Sort) > 0 || p.Skip != 0 || p.Limit != 0
	hasIndex := len(p.Keys) > 0 || p.Index != (IndexOptions{})

	switch kind {
	case KindFind:
		switch {
		case hasUpdate:
			return invalidf("find does not take an update document")
		case len(p.Pipeline) > 0:
			return invalidf("find does not take a pipeline")
		case hasIndex:
			return invalidf("find does not take index keys")
		case p.Skip < 0:
			return invalidf("skip must be non-negative, got %d", p.Skip)
		case p.Limit < 0:
			return invalidf("limit must be non-negative, got %d", p.Limit)
		}
		if err := checkProjection(p.Projection, nil); err != nil {
			return err
		}
		if err := checkSort(p.Sort, nil); err != nil {
			return err
		}
		_, err := ParseFilter(p.Criteria, nil)
		return err

	case KindUpdate:
		switch {
		case len(p.Criteria) == 0:
			return invalidf("update requires criteria")
		case p.Update.IsEmpty():
			return invalidf("update requires an update document")
		case hasFindOpts:
			return invalidf("update does not take projection, sort, skip or limit")
		case len(p.Pipeline) > 0:
			return invalidf("update does not take a pipeline")
		case hasIndex:
			return invalidf("update does not take index keys")
		}
		if err := checkUpdate(p.Update, nil); err != nil {
			return err
		}
		_, err := ParseFilter(p.Criteria, nil)
		return err

	case KindDelete:
		switch {
		case len(p.Criteria) == 0:
			return invalidf("delete requires criteria")
		case hasUpdate:
			return invalidf("delete does not take an update document")
		case hasFindOpts:
			return invalidf("delete does not take projection, sort, skip or limit")
		case len(p.Pipeline) > 0:
			return invalidf("delete does not take a pipeline")
		case hasIndex:
			return invalidf("delete does not take index keys")
		}
		_, err := ParseFilter(p.Criteria, nil)
		return err

	case KindAggregate:
		switch {
		case len(p.Pipeline) == 0:
			return invalidf("aggregate requires at least one stage")
		case len(p.Criteria) > 0:
			return invalidf("aggregate takes criteria through a $match stage")
		case hasUpdate:
			return invalidf("aggregate does not take an update document")
		case hasFindOpts:
			return invalidf("aggregate takes sort, skip and limit as stages")
		case hasIndex:
			return invalidf("aggregate does not take index keys")
		}
		_, err := ResolvePipeline(p.Pipeline, nil)
		return err

	case KindCreateIndex:
		switch {
		case len(p.Keys) == 0:
			return invalidf("createIndex requires at least one key")
		case len(p.Criteria) > 0:
			return invalidf("createIndex does not take criteria")
		case hasUpdate:
			return invalidf("createIndex does not take an update document")
		case hasFindOpts:
			return invalidf("createIndex does not take projection, sort, skip or limit")
		case len(p.Pipeline) > 0:
			return invalidf("createIndex does not take a pipeline")
		case p.Index.Name != "" && !indexNamePattern.MatchString(p.Index.Name):
			return invalidf("invalid index name %q", p.Index.Name)
		}
		return checkKeys(p.Keys, nil)
	}
	return invalidf("unknown definition kind %d", int(kind))
}

// Validate checks every field and literal against schema. It also rejects
// the zero Definition.
func (d Definition) Validate(schema Schema) error {
	switch d.kind {
	case KindFind:
		if _, err := ParseFilter(d.criteria, schema); err != nil {
			return err
		}
		if err := checkProjection(d.projection, schema); err != nil {
			return err
		}
		return checkSort(d.sort, schema)
	case KindUpdate:
		if _, err := ParseFilter(d.criteria, schema); err != nil {
			return err
		}
		return checkUpdate(d.update, schema)
	case KindDelete:
		_, err := ParseFilter(d.criteria, schema)
		return err
	case KindAggregate:
		_, err := ResolvePipeline(d.pipeline, schema)
		return err
	case KindCreateIndex:
		return checkKeys(d.keys, schema)
	}
	return invalidf("definition has no kind")
}

func checkProjection(p Projection, schema Schema) error {
	include, exclude := false, false
	for field, v := range p {
		if field != "_id" {
			if _, err := schema.requireField(field); err != nil {
				return err
			}
		}
		switch v {
		case 1:
			if field != "_id" {
				include = true
			}
		case 0:
			if field != "_id" {
				exclude = true
			}
		default:
			return invalidf("projection value for %q must be 0 or 1, got %d", field, v)
		}
	}
	if include && exclude {
		return invalidf("projection cannot mix inclusion and exclusion")
	}
	return nil
}

func checkKeys(keys []IndexKey, schema Schema) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, err := schema.requireField(k.Field); err != nil {
			return err
		}
		if k.Direction != Ascending && k.Direction != Descending {
			return invalidf("index direction for %q must be 1 or -1, got %d", k.Field, k.Direction)
		}
		if seen[k.Field] {
			return invalidf("index key %q appears twice", k.Field)
		}
		seen[k.Field] = true
	}
	return nil
}

func checkUpdate(u *Update, schema Schema) error {
	touched := make(map[string]bool)
	mark := func(field string) (FieldKind, error) {
		if field == "_id" {
			return KindAny, invalidf("_id cannot be modified")
		}
		k, err := schema.requireField(field)
		if err != nil {
			return KindAny, err
		}
		if touched[field] {
			return KindAny, invalidf("update touches %q more than once", field)
		}
		touched[field] = true
		return k, nil
	}

	for field, v := range u.Set {
		k, err := mark(field)
		if err != nil {
			return err
		}
		if v == nil {
			return invalidf("$set %q to null; use unset instead", field)
		}
		if err := checkValue(field, k, v); err != nil {
			return err
		}
	}
	for field, v := range u.Inc {
		k, err := mark(field)
		if err != nil {
			return err
		}
		if !isNumericKind(k) {
			return invalidf("$inc on non-numeric field %q", field)
		}
		if !isNumber(v) || (k == KindInt && !isInteger(v)) {
			return invalidf("$inc %q by %T(%v) is not allowed", field, v, v)
		}
	}
	for _, field := range u.Unset {
		if _, err := mark(field); err != nil {
			return err
		}
	}
	return nil
}

// Kind returns the definition kind.
func (d Definition) Kind() Kind { return d.kind }

// Description returns the human-readable summary.
func (d Definition) Description() string { return d.description }

// Criteria returns a copy of the filter.
func (d Definition) Criteria() Filter { return cloneFilter(d.criteria) }

// Projection returns a copy of the projection.
func (d Definition) Projection() Projection { return cloneProjection(d.projection) }

// Sort returns a copy of the sort specification.
func (d Definition) Sort() []SortField { return append([]SortField(nil), d.sort...) }

func (d Definition) Skip() int  { return d.skip }
func (d Definition) Limit() int { return d.limit }

// Update returns a copy of the update document, or nil.
func (d Definition) Update() *Update { return cloneUpdate(d.update) }

// Pipeline returns a copy of the aggregation stages.
func (d Definition) Pipeline() []Stage {
	if d.pipeline == nil {
		return nil
	}
	out := make([]Stage, len(d.pipeline))
	for i, st := range d.pipeline {
		out[i] = cloneStage(st)
	}
	return out
}

// Keys returns a copy of the index keys.
func (d Definition) Keys() []IndexKey { return append([]IndexKey(nil), d.keys...) }

// IndexOptions returns the index options.
func (d Definition) IndexOptions() IndexOptions { return d.index }

func cloneFilter(f Filter) Filter {
	if f == nil {
		return nil
	}
	return Filter(cloneMap(f))
}

func cloneProjection(p Projection) Projection {
	if p == nil {
		return nil
	}
	out := make(Projection, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func cloneUpdate(u *Update) *Update {
	if u == nil {
		return nil
	}
	out := &Update{}
	if u.Set != nil {
		out.Set = cloneMap(u.Set)
	}
	if u.Inc != nil {
		out.Inc = cloneMap(u.Inc)
	}
	if u.Unset != nil {
		out.Unset = append([]string(nil), u.Unset...)
	}
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies maps and slices while keeping their dynamic types,
// so a copied filter compares equal to the original.
func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case Filter:
		return cloneFilter(x)
	case Cond:
		return Cond(cloneMap(x))
	case map[string]interface{}:
		return cloneMap(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []Filter:
		out := make([]Filter, len(x))
		for i, e := range x {
			out[i] = cloneFilter(e)
		}
		return out
	case string:
		return x
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface()
	}
	return v
}
