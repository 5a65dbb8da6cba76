// ABOUTME: Aggregation pipelines compiled into nested SELECT statements
// ABOUTME: Stages fold into the current SELECT when order allows, otherwise wrap it

package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/nainya/bookquery/pkg/query"
	"github.com/nainya/bookquery/pkg/store"
)

// selectQuery is one level of a compiled pipeline. Every level yields a
// single column named doc holding a JSON document.
type selectQuery struct {
	cols      string
	colArgs   []interface{}
	from      string
	fromArgs  []interface{}
	where     []string
	whereArgs []interface{}
	groupBy   string
	groupArgs []interface{}
	having    string
	orderBy   string
	limit     int
	offset    int

	// passthrough is set while cols is the unmodified input document, so
	// filters, sorts and paging can still be folded into this level.
	passthrough bool
}

func newLevel(from string, args []interface{}) *selectQuery {
	return &selectQuery{
		cols:        "s.doc AS doc",
		from:        from,
		fromArgs:    args,
		limit:       -1,
		passthrough: true,
	}
}

func (q *selectQuery) unpaged() bool {
	return q.limit < 0 && q.offset == 0
}

func (q *selectQuery) sql() (string, []interface{}) {
	var b strings.Builder
	args := make([]interface{}, 0, len(q.colArgs)+len(q.fromArgs)+len(q.whereArgs)+len(q.groupArgs))

	fmt.Fprintf(&b, "SELECT %s FROM %s", q.cols, q.from)
	args = append(args, q.colArgs...)
	args = append(args, q.fromArgs...)
	if len(q.where) > 0 {
		b.WriteString(" WHERE " + strings.Join(q.where, " AND "))
		args = append(args, q.whereArgs...)
	}
	if q.groupBy != "" {
		b.WriteString(" GROUP BY " + q.groupBy)
		args = append(args, q.groupArgs...)
	}
	if q.having != "" {
		b.WriteString(" HAVING " + q.having)
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY " + q.orderBy)
	}
	if !q.unpaged() {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", q.limit, q.offset)
	}
	return b.String(), args
}

// wrap turns q into the source of a new passthrough level.
func (q *selectQuery) wrap() *selectQuery {
	stmt, args := q.sql()
	return newLevel("("+stmt+") AS s", args)
}

// compilePipeline returns the statement running stages over the collection.
func (s *Store) compilePipeline(stages []query.Stage) (string, []interface{}, error) {
	cur := newLevel(s.quotedTable()+" AS s", nil)

	for i, st := range stages {
		next, err := compileStage(cur, st)
		if err != nil {
			name := "<nil>"
			if st != nil {
				name = st.StageName()
			}
			return "", nil, fmt.Errorf("sqlstore: stage %d (%s): %w", i, name, err)
		}
		cur = next
	}
	stmt, args := cur.sql()
	return stmt, args, nil
}

func compileStage(cur *selectQuery, st query.Stage) (*selectQuery, error) {
	switch stage := st.(type) {
	case *query.MatchStage:
		where, args, err := compileFilter(stage.Filter, "s.doc")
		if err != nil {
			return nil, err
		}
		if !cur.passthrough || !cur.unpaged() {
			cur = cur.wrap()
		}
		cur.where = append(cur.where, where)
		cur.whereArgs = append(cur.whereArgs, args...)
		return cur, nil

	case *query.SortStage:
		if !cur.passthrough || cur.orderBy != "" || !cur.unpaged() {
			cur = cur.wrap()
		}
		cur.orderBy = compileSort(stage.Fields, "s.doc")
		return cur, nil

	case *query.SkipStage:
		if !cur.passthrough || cur.limit >= 0 {
			cur = cur.wrap()
		}
		cur.offset += stage.N
		return cur, nil

	case *query.LimitStage:
		if !cur.passthrough {
			cur = cur.wrap()
		}
		if cur.limit < 0 || stage.N < cur.limit {
			cur.limit = stage.N
		}
		return cur, nil

	case *query.GroupStage:
		return compileGroup(cur, stage)

	case *query.ProjectStage:
		return compileProject(cur, stage)

	case *query.CountStage:
		if !cur.passthrough || !cur.unpaged() {
			cur = cur.wrap()
		}
		cur.cols = fmt.Sprintf("json_object('%s', COUNT(*)) AS doc", stage.Field)
		cur.orderBy = ""
		cur.having = "COUNT(*) > 0"
		cur.passthrough = false
		return cur, nil
	}
	return nil, fmt.Errorf("unsupported stage %T", st)
}

func compileGroup(cur *selectQuery, g *query.GroupStage) (*selectQuery, error) {
	if !cur.passthrough || cur.orderBy != "" || !cur.unpaged() {
		cur = cur.wrap()
	}

	pairs := make([]string, 0, len(g.Accumulators)+1)
	var colArgs []interface{}

	if g.ID == nil {
		pairs = append(pairs, "'_id', NULL")
		cur.having = "COUNT(*) > 0"
	} else {
		var idArgs []interface{}
		id, err := exprSQL(g.ID, "s.doc", &idArgs)
		if err != nil {
			return nil, fmt.Errorf("_id: %w", err)
		}
		pairs = append(pairs, "'_id', "+id)
		colArgs = append(colArgs, idArgs...)
		cur.groupBy = id
		cur.groupArgs = idArgs
	}

	for _, acc := range g.Accumulators {
		agg, err := accumulatorSQL(acc, &colArgs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", acc.Field, err)
		}
		pairs = append(pairs, fmt.Sprintf("'%s', %s", acc.Field, agg))
	}

	cur.cols = "json_object(" + strings.Join(pairs, ", ") + ") AS doc"
	cur.colArgs = colArgs
	cur.passthrough = false
	return cur, nil
}

func accumulatorSQL(acc query.Accumulator, args *[]interface{}) (string, error) {
	if acc.Op == query.AccCount {
		return "COUNT(*)", nil
	}

	arg, err := exprSQL(acc.Expr, "s.doc", args)
	if err != nil {
		return "", err
	}
	switch acc.Op {
	case query.AccSum:
		return "SUM(" + arg + ")", nil
	case query.AccAvg:
		return "AVG(" + arg + ")", nil
	case query.AccMin:
		return "MIN(" + arg + ")", nil
	case query.AccMax:
		return "MAX(" + arg + ")", nil
	case query.AccPush:
		return "json_group_array(" + arg + ")", nil
	}
	return "", fmt.Errorf("unsupported accumulator %s", acc.Op)
}

func compileProject(cur *selectQuery, p *query.ProjectStage) (*selectQuery, error) {
	if !cur.passthrough {
		cur = cur.wrap()
	}

	exclusion := true
	for _, f := range p.Fields {
		if f.Mode != query.ProjectExclude {
			exclusion = false
		}
	}

	if exclusion {
		paths := make([]string, len(p.Fields))
		for i, f := range p.Fields {
			paths[i] = jsonPath(f.Name)
		}
		cur.cols = fmt.Sprintf("json_remove(s.doc, %s) AS doc", strings.Join(paths, ", "))
		cur.passthrough = false
		return cur, nil
	}

	autoID := true
	for _, f := range p.Fields {
		if f.Name == "_id" {
			autoID = false
		}
	}

	var pairs []string
	var args []interface{}
	if autoID {
		pairs = append(pairs, "'_id', "+fieldJSON("s.doc", "_id"))
	}
	for _, f := range p.Fields {
		switch f.Mode {
		case query.ProjectInclude:
			pairs = append(pairs, fmt.Sprintf("'%s', %s", f.Name, fieldJSON("s.doc", f.Name)))
		case query.ProjectCompute:
			out, err := outputSQL(f.Expr, "s.doc", &args)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			pairs = append(pairs, fmt.Sprintf("'%s', %s", f.Name, out))
		}
	}

	cur.cols = "json_object(" + strings.Join(pairs, ", ") + ") AS doc"
	cur.colArgs = args
	cur.passthrough = false
	return cur, nil
}

// exprSQL renders e as an SQL value.
func exprSQL(e query.Expr, col string, args *[]interface{}) (string, error) {
	switch x := e.(type) {
	case *query.FieldRef:
		return fieldValue(col, x.Name), nil
	case *query.Literal:
		if x.Value == nil {
			return "NULL", nil
		}
		*args = append(*args, x.Value)
		return "?", nil
	case *query.Call:
		return callSQL(x, col, args)
	}
	return "", fmt.Errorf("unsupported expression %T", e)
}

func callSQL(c *query.Call, col string, args *[]interface{}) (string, error) {
	operands := make([]string, len(c.Args))
	operandArgs := make([][]interface{}, len(c.Args))
	for i, a := range c.Args {
		s, err := exprSQL(a, col, &operandArgs[i])
		if err != nil {
			return "", err
		}
		operands[i] = s
	}
	all := func() {
		for _, a := range operandArgs {
			*args = append(*args, a...)
		}
	}

	switch c.Op {
	case query.OpAdd:
		all()
		return "(" + strings.Join(operands, " + ") + ")", nil
	case query.OpSubtract:
		all()
		return "(" + strings.Join(operands, " - ") + ")", nil
	case query.OpMultiply:
		all()
		return "(" + strings.Join(operands, " * ") + ")", nil
	case query.OpDivide:
		all()
		return fmt.Sprintf("(CAST(%s AS REAL) / %s)", operands[0], operands[1]), nil
	case query.OpConcat:
		all()
		return "(" + strings.Join(operands, " || ") + ")", nil
	case query.OpToString:
		all()
		return fmt.Sprintf("CAST(%s AS TEXT)", operands[0]), nil
	case query.OpToLower:
		all()
		return fmt.Sprintf("lower(%s)", operands[0]), nil
	case query.OpToUpper:
		all()
		return fmt.Sprintf("upper(%s)", operands[0]), nil
	case query.OpFloor:
		// The operand is rendered three times; bind its arguments for each.
		for i := 0; i < 3; i++ {
			all()
		}
		v := operands[0]
		return fmt.Sprintf("(CAST(%s AS INTEGER) - (%s < CAST(%s AS INTEGER)))", v, v, v), nil
	}
	return "", fmt.Errorf("unsupported operator %s", c.Op)
}

// outputSQL renders e as a value embedded in a JSON document. Field
// references and booleans keep their JSON type.
func outputSQL(e query.Expr, col string, args *[]interface{}) (string, error) {
	switch x := e.(type) {
	case *query.FieldRef:
		return fieldJSON(col, x.Name), nil
	case *query.Literal:
		if b, ok := x.Value.(bool); ok {
			if b {
				return "json('true')", nil
			}
			return "json('false')", nil
		}
	}
	return exprSQL(e, col, args)
}

// Aggregate runs the pipeline and returns the documents it emits.
func (s *Store) Aggregate(ctx context.Context, req store.AggregateRequest) (store.Cursor, error) {
	stmt, args, err := s.compilePipeline(req.Pipeline)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: aggregate: %w", err)
	}
	return newRowsCursor(rows), nil
}
