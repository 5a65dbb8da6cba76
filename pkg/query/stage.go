// ABOUTME: Tagged aggregation stage descriptors
// ABOUTME: Each stage checks its own fields and derives the schema it emits

package query

import "fmt"

// Stage is one step of an aggregation pipeline.
type Stage interface {
	// StageName returns the engine operator, e.g. "$group".
	StageName() string
	// resolve validates the stage against the schema flowing into it and
	// returns the schema flowing out. A nil input schema skips field checks.
	resolve(in Schema) (Schema, error)
}

// MatchStage filters documents.
type MatchStage struct {
	Filter Filter
}

// GroupStage groups documents by ID and computes accumulators per group. A
// nil ID puts every document in one group.
type GroupStage struct {
	ID           Expr
	Accumulators []Accumulator
}

// SortStage orders documents.
type SortStage struct {
	Fields []SortField
}

// SkipStage drops the first N documents.
type SkipStage struct {
	N int
}

// LimitStage keeps at most N documents.
type LimitStage struct {
	N int
}

// ProjectStage reshapes documents.
type ProjectStage struct {
	Fields []ProjectField
}

// CountStage replaces the stream with one document holding its size.
type CountStage struct {
	Field string
}

func (*MatchStage) StageName() string   { return "$match" }
func (*GroupStage) StageName() string   { return "$group" }
func (*SortStage) StageName() string    { return "$sort" }
func (*SkipStage) StageName() string    { return "$skip" }
func (*LimitStage) StageName() string   { return "$limit" }
func (*ProjectStage) StageName() string { return "$project" }
func (*CountStage) StageName() string   { return "$count" }

// Match builds a $match stage.
func Match(f Filter) *MatchStage { return &MatchStage{Filter: f} }

// Group builds a $group stage.
func Group(id Expr, accs ...Accumulator) *GroupStage {
	return &GroupStage{ID: id, Accumulators: accs}
}

// SortBy builds a $sort stage.
func SortBy(fields ...SortField) *SortStage { return &SortStage{Fields: fields} }

// Skip builds a $skip stage.
func Skip(n int) *SkipStage { return &SkipStage{N: n} }

// Limit builds a $limit stage.
func Limit(n int) *LimitStage { return &LimitStage{N: n} }

// Project builds a $project stage.
func Project(fields ...ProjectField) *ProjectStage { return &ProjectStage{Fields: fields} }

// Count builds a $count stage.
func Count(field string) *CountStage { return &CountStage{Field: field} }

// AccumulatorOp names a group accumulator.
type AccumulatorOp string

const (
	AccSum   AccumulatorOp = "$sum"
	AccAvg   AccumulatorOp = "$avg"
	AccMin   AccumulatorOp = "$min"
	AccMax   AccumulatorOp = "$max"
	AccCount AccumulatorOp = "$count"
	AccPush  AccumulatorOp = "$push"
)

// Accumulator computes one output field of a group.
type Accumulator struct {
	Field string
	Op    AccumulatorOp
	Expr  Expr
}

func Sum(field string, e Expr) Accumulator  { return Accumulator{Field: field, Op: AccSum, Expr: e} }
func Avg(field string, e Expr) Accumulator  { return Accumulator{Field: field, Op: AccAvg, Expr: e} }
func Min(field string, e Expr) Accumulator  { return Accumulator{Field: field, Op: AccMin, Expr: e} }
func Max(field string, e Expr) Accumulator  { return Accumulator{Field: field, Op: AccMax, Expr: e} }
func Push(field string, e Expr) Accumulator { return Accumulator{Field: field, Op: AccPush, Expr: e} }

// CountAcc counts the documents of each group.
func CountAcc(field string) Accumulator { return Accumulator{Field: field, Op: AccCount} }

// ProjectMode selects how a projected field is produced.
type ProjectMode int

const (
	ProjectInclude ProjectMode = iota
	ProjectExclude
	ProjectCompute
)

// ProjectField is one entry of a $project stage.
type ProjectField struct {
	Name string
	Mode ProjectMode
	Expr Expr
}

// Include keeps an input field.
func Include(name string) ProjectField { return ProjectField{Name: name, Mode: ProjectInclude} }

// Exclude drops an input field.
func Exclude(name string) ProjectField { return ProjectField{Name: name, Mode: ProjectExclude} }

// Compute sets a field from an expression.
func Compute(name string, e Expr) ProjectField {
	return ProjectField{Name: name, Mode: ProjectCompute, Expr: e}
}

func (s *MatchStage) resolve(in Schema) (Schema, error) {
	if len(s.Filter) == 0 {
		return nil, invalidf("$match requires a filter")
	}
	if _, err := ParseFilter(s.Filter, in); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *GroupStage) resolve(in Schema) (Schema, error) {
	out := Schema{"_id": KindAny}
	if s.ID != nil {
		k, err := checkExpr(s.ID, in)
		if err != nil {
			return nil, fmt.Errorf("$group _id: %w", err)
		}
		out["_id"] = k
	}

	for _, acc := range s.Accumulators {
		if !ValidFieldName(acc.Field) || acc.Field == "_id" {
			return nil, invalidf("$group output field %q is not allowed", acc.Field)
		}
		if _, dup := out[acc.Field]; dup {
			return nil, invalidf("$group output field %q appears twice", acc.Field)
		}

		var argKind FieldKind
		if acc.Op == AccCount {
			if acc.Expr != nil {
				return nil, invalidf("$count accumulator %q takes no expression", acc.Field)
			}
		} else {
			k, err := checkExpr(acc.Expr, in)
			if err != nil {
				return nil, fmt.Errorf("$group %s: %w", acc.Field, err)
			}
			argKind = k
		}

		switch acc.Op {
		case AccSum:
			if !isNumericKind(argKind) {
				return nil, invalidf("$sum %q requires a numeric expression", acc.Field)
			}
			out[acc.Field] = argKind
			if argKind == KindAny {
				out[acc.Field] = KindNumber
			}
		case AccAvg:
			if !isNumericKind(argKind) {
				return nil, invalidf("$avg %q requires a numeric expression", acc.Field)
			}
			out[acc.Field] = KindNumber
		case AccMin, AccMax:
			out[acc.Field] = argKind
		case AccCount:
			out[acc.Field] = KindInt
		case AccPush:
			out[acc.Field] = KindAny
		default:
			return nil, invalidf("unknown accumulator %q", acc.Op)
		}
	}
	return out, nil
}

func (s *SortStage) resolve(in Schema) (Schema, error) {
	if len(s.Fields) == 0 {
		return nil, invalidf("$sort requires at least one field")
	}
	if err := checkSort(s.Fields, in); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *SkipStage) resolve(in Schema) (Schema, error) {
	if s.N < 0 {
		return nil, invalidf("$skip must be non-negative, got %d", s.N)
	}
	return in, nil
}

func (s *LimitStage) resolve(in Schema) (Schema, error) {
	if s.N <= 0 {
		return nil, invalidf("$limit must be positive, got %d", s.N)
	}
	return in, nil
}

func (s *ProjectStage) resolve(in Schema) (Schema, error) {
	if len(s.Fields) == 0 {
		return nil, invalidf("$project requires at least one field")
	}

	seen := make(map[string]bool, len(s.Fields))
	inclusion, exclusion := false, false
	for _, f := range s.Fields {
		if !ValidFieldName(f.Name) {
			return nil, invalidf("invalid $project field %q", f.Name)
		}
		if seen[f.Name] {
			return nil, invalidf("$project field %q appears twice", f.Name)
		}
		seen[f.Name] = true

		switch f.Mode {
		case ProjectInclude, ProjectExclude:
			if f.Expr != nil {
				return nil, invalidf("$project field %q cannot carry an expression", f.Name)
			}
		case ProjectCompute:
			if f.Expr == nil {
				return nil, invalidf("$project field %q requires an expression", f.Name)
			}
		default:
			return nil, invalidf("unknown $project mode for %q", f.Name)
		}
		if f.Name == "_id" {
			continue
		}
		if f.Mode == ProjectExclude {
			exclusion = true
		} else {
			inclusion = true
		}
	}
	if inclusion && exclusion {
		return nil, invalidf("$project cannot mix inclusion and exclusion")
	}

	if exclusion || (!inclusion && onlyExcludesID(s.Fields)) {
		if in == nil {
			return nil, nil
		}
		out := in.Clone()
		for _, f := range s.Fields {
			if _, err := in.requireField(f.Name); err != nil {
				return nil, err
			}
			delete(out, f.Name)
		}
		return out, nil
	}

	out := Schema{}
	keepID := true
	for _, f := range s.Fields {
		switch f.Mode {
		case ProjectExclude:
			keepID = false
		case ProjectInclude:
			k, err := in.requireField(f.Name)
			if err != nil {
				return nil, err
			}
			out[f.Name] = k
		case ProjectCompute:
			k, err := checkExpr(f.Expr, in)
			if err != nil {
				return nil, fmt.Errorf("$project %s: %w", f.Name, err)
			}
			out[f.Name] = k
		}
	}
	if _, set := out["_id"]; keepID && !set {
		if k, ok := in.Lookup("_id"); ok {
			out["_id"] = k
		}
	}
	return out, nil
}

func onlyExcludesID(fields []ProjectField) bool {
	for _, f := range fields {
		if f.Name != "_id" || f.Mode != ProjectExclude {
			return false
		}
	}
	return true
}

func (s *CountStage) resolve(in Schema) (Schema, error) {
	if !ValidFieldName(s.Field) || s.Field == "_id" {
		return nil, invalidf("invalid $count field %q", s.Field)
	}
	return Schema{s.Field: KindInt}, nil
}

// ResolvePipeline checks stages in order, threading the schema through them,
// and returns the schema of the documents the pipeline emits.
func ResolvePipeline(stages []Stage, in Schema) (Schema, error) {
	cur := in
	for i, st := range stages {
		if st == nil {
			return nil, invalidf("pipeline stage %d is nil", i)
		}
		out, err := st.resolve(cur)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i, st.StageName(), err)
		}
		cur = out
	}
	return cur, nil
}

func checkSort(fields []SortField, in Schema) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if _, err := in.requireField(f.Field); err != nil {
			return err
		}
		if f.Direction != Ascending && f.Direction != Descending {
			return invalidf("sort direction for %q must be 1 or -1, got %d", f.Field, f.Direction)
		}
		if seen[f.Field] {
			return invalidf("sort field %q appears twice", f.Field)
		}
		seen[f.Field] = true
	}
	return nil
}

func cloneStage(st Stage) Stage {
	switch s := st.(type) {
	case *MatchStage:
		return &MatchStage{Filter: cloneFilter(s.Filter)}
	case *GroupStage:
		accs := make([]Accumulator, len(s.Accumulators))
		for i, a := range s.Accumulators {
			accs[i] = Accumulator{Field: a.Field, Op: a.Op, Expr: cloneExpr(a.Expr)}
		}
		return &GroupStage{ID: cloneExpr(s.ID), Accumulators: accs}
	case *SortStage:
		return &SortStage{Fields: append([]SortField(nil), s.Fields...)}
	case *SkipStage:
		return &SkipStage{N: s.N}
	case *LimitStage:
		return &LimitStage{N: s.N}
	case *ProjectStage:
		fields := make([]ProjectField, len(s.Fields))
		for i, f := range s.Fields {
			fields[i] = ProjectField{Name: f.Name, Mode: f.Mode, Expr: cloneExpr(f.Expr)}
		}
		return &ProjectStage{Fields: fields}
	case *CountStage:
		return &CountStage{Field: s.Field}
	}
	return st
}
