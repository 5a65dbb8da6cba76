// ABOUTME: Query definition vocabulary: kinds, criteria, projection, sort, update, index keys
// ABOUTME: Values mirror the document engine's own query language

package query

// Kind identifies which store capability a definition targets.
type Kind int

const (
	KindFind Kind = iota + 1
	KindUpdate
	KindDelete
	KindAggregate
	KindCreateIndex
)

func (k Kind) String() string {
	switch k {
	case KindFind:
		return "find"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindAggregate:
		return "aggregate"
	case KindCreateIndex:
		return "createIndex"
	default:
		return "unknown"
	}
}

// Filter maps a field to a match condition. A plain value means equality; a
// Cond (or map with "$" keys) applies comparison operators. The "$and" and
// "$or" keys take lists of filters.
type Filter map[string]interface{}

// Cond is an operator map such as {"$gt": 2010}.
type Cond map[string]interface{}

// Eq matches documents whose field equals v.
func Eq(v interface{}) Cond { return Cond{string(OpEq): v} }

// Ne matches documents whose field differs from v.
func Ne(v interface{}) Cond { return Cond{string(OpNe): v} }

// Gt matches documents whose field is greater than v.
func Gt(v interface{}) Cond { return Cond{string(OpGt): v} }

// Gte matches documents whose field is greater than or equal to v.
func Gte(v interface{}) Cond { return Cond{string(OpGte): v} }

// Lt matches documents whose field is less than v.
func Lt(v interface{}) Cond { return Cond{string(OpLt): v} }

// Lte matches documents whose field is less than or equal to v.
func Lte(v interface{}) Cond { return Cond{string(OpLte): v} }

// In matches documents whose field is one of vals.
func In(vals ...interface{}) Cond { return Cond{string(OpIn): vals} }

// Nin matches documents whose field is none of vals.
func Nin(vals ...interface{}) Cond { return Cond{string(OpNin): vals} }

// Exists matches documents that have (or lack) the field.
func Exists(present bool) Cond { return Cond{string(OpExists): present} }

// And combines filters with logical conjunction.
func And(filters ...Filter) Filter { return Filter{"$and": filters} }

// Or combines filters with logical disjunction.
func Or(filters ...Filter) Filter { return Filter{"$or": filters} }

// Projection selects fields to include (1) or exclude (0). Inclusion and
// exclusion cannot be mixed, except for "_id".
type Projection map[string]int

// Direction is a sort or index order.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortField is one entry of an ordered sort specification.
type SortField struct {
	Field     string
	Direction Direction
}

// Asc sorts field in ascending order.
func Asc(field string) SortField { return SortField{Field: field, Direction: Ascending} }

// Desc sorts field in descending order.
func Desc(field string) SortField { return SortField{Field: field, Direction: Descending} }

// IndexKey is one entry of an ordered index key specification.
type IndexKey struct {
	Field     string
	Direction Direction
}

// IndexOptions carries optional index settings. An empty Name lets the store
// derive one from the keys.
type IndexOptions struct {
	Name   string
	Unique bool
}

// Update describes modifications applied by an update definition.
type Update struct {
	Set   map[string]interface{}
	Inc   map[string]interface{}
	Unset []string
}

// IsEmpty reports whether the update modifies nothing.
func (u *Update) IsEmpty() bool {
	return u == nil || (len(u.Set) == 0 && len(u.Inc) == 0 && len(u.Unset) == 0)
}
