// ABOUTME: Fluent builder for query definitions
// ABOUTME: Build runs the same construction checks as New

package query

// QueryBuilder provides a fluent interface for building definitions.
type QueryBuilder struct {
	kind  Kind
	parts Parts
}

// NewQueryBuilder creates a builder for the given kind.
func NewQueryBuilder(kind Kind) *QueryBuilder {
	return &QueryBuilder{kind: kind}
}

// NewFind starts a find definition.
func NewFind() *QueryBuilder { return NewQueryBuilder(KindFind) }

// NewUpdate starts an update definition.
func NewUpdate() *QueryBuilder { return NewQueryBuilder(KindUpdate) }

// NewDelete starts a delete definition.
func NewDelete() *QueryBuilder { return NewQueryBuilder(KindDelete) }

// NewAggregate starts an aggregate definition with the given stages.
func NewAggregate(stages ...Stage) *QueryBuilder {
	qb := NewQueryBuilder(KindAggregate)
	qb.parts.Pipeline = append(qb.parts.Pipeline, stages...)
	return qb
}

// NewCreateIndex starts an index definition.
func NewCreateIndex() *QueryBuilder { return NewQueryBuilder(KindCreateIndex) }

// Describe sets the human-readable summary.
func (qb *QueryBuilder) Describe(text string) *QueryBuilder {
	qb.parts.Description = text
	return qb
}

// Where adds a filter condition on one field.
func (qb *QueryBuilder) Where(field string, cond interface{}) *QueryBuilder {
	if qb.parts.Criteria == nil {
		qb.parts.Criteria = Filter{}
	}
	qb.parts.Criteria[field] = cond
	return qb
}

// Filter merges every entry of f into the criteria.
func (qb *QueryBuilder) Filter(f Filter) *QueryBuilder {
	for k, v := range f {
		qb.Where(k, v)
	}
	return qb
}

// Select includes fields in the projection.
func (qb *QueryBuilder) Select(fields ...string) *QueryBuilder {
	return qb.project(1, fields)
}

// Omit excludes fields from the projection.
func (qb *QueryBuilder) Omit(fields ...string) *QueryBuilder {
	return qb.project(0, fields)
}

func (qb *QueryBuilder) project(v int, fields []string) *QueryBuilder {
	if qb.parts.Projection == nil {
		qb.parts.Projection = Projection{}
	}
	for _, f := range fields {
		qb.parts.Projection[f] = v
	}
	return qb
}

// OrderBy appends a sort field.
func (qb *QueryBuilder) OrderBy(field string, dir Direction) *QueryBuilder {
	qb.parts.Sort = append(qb.parts.Sort, SortField{Field: field, Direction: dir})
	return qb
}

// Skip sets the number of documents to skip.
func (qb *QueryBuilder) Skip(n int) *QueryBuilder {
	qb.parts.Skip = n
	return qb
}

// Limit sets the maximum number of documents; zero means no limit.
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.parts.Limit = n
	return qb
}

// Page sets skip and limit for a 1-based page of the given size.
func (qb *QueryBuilder) Page(page, size int) *QueryBuilder {
	qb.parts.Skip = (page - 1) * size
	qb.parts.Limit = size
	return qb
}

// Set assigns a field in the update document.
func (qb *QueryBuilder) Set(field string, v interface{}) *QueryBuilder {
	u := qb.updateDoc()
	if u.Set == nil {
		u.Set = map[string]interface{}{}
	}
	u.Set[field] = v
	return qb
}

// Inc increments a numeric field in the update document.
func (qb *QueryBuilder) Inc(field string, by interface{}) *QueryBuilder {
	u := qb.updateDoc()
	if u.Inc == nil {
		u.Inc = map[string]interface{}{}
	}
	u.Inc[field] = by
	return qb
}

// Unset removes fields in the update document.
func (qb *QueryBuilder) Unset(fields ...string) *QueryBuilder {
	u := qb.updateDoc()
	u.Unset = append(u.Unset, fields...)
	return qb
}

func (qb *QueryBuilder) updateDoc() *Update {
	if qb.parts.Update == nil {
		qb.parts.Update = &Update{}
	}
	return qb.parts.Update
}

// Stage appends aggregation stages.
func (qb *QueryBuilder) Stage(stages ...Stage) *QueryBuilder {
	qb.parts.Pipeline = append(qb.parts.Pipeline, stages...)
	return qb
}

// Key appends an index key.
func (qb *QueryBuilder) Key(field string, dir Direction) *QueryBuilder {
	qb.parts.Keys = append(qb.parts.Keys, IndexKey{Field: field, Direction: dir})
	return qb
}

// Named sets an explicit index name.
func (qb *QueryBuilder) Named(name string) *QueryBuilder {
	qb.parts.Index.Name = name
	return qb
}

// Unique marks the index as unique.
func (qb *QueryBuilder) Unique() *QueryBuilder {
	qb.parts.Index.Unique = true
	return qb
}

// Build validates and returns the definition.
func (qb *QueryBuilder) Build() (Definition, error) {
	return New(qb.kind, qb.parts)
}

// MustBuild is like Build but panics on error. It is intended for
// package-level catalogs whose definitions are fixed at compile time.
func (qb *QueryBuilder) MustBuild() Definition {
	d, err := qb.Build()
	if err != nil {
		panic(err)
	}
	return d
}
