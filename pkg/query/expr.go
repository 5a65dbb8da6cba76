// ABOUTME: Aggregation expressions: field references, literals and operator calls
// ABOUTME: Expressions are checked for arity and resolved to a result kind

package query

import "strings"

// Expr is an aggregation expression: *FieldRef, *Literal or *Call.
type Expr interface {
	exprNode()
}

// FieldRef reads a field of the current document ("$field").
type FieldRef struct {
	Name string
}

// Literal is a constant value.
type Literal struct {
	Value interface{}
}

// ExprOp names an expression operator.
type ExprOp string

const (
	OpAdd      ExprOp = "$add"
	OpSubtract ExprOp = "$subtract"
	OpMultiply ExprOp = "$multiply"
	OpDivide   ExprOp = "$divide"
	OpFloor    ExprOp = "$floor"
	OpToString ExprOp = "$toString"
	OpConcat   ExprOp = "$concat"
	OpToLower  ExprOp = "$toLower"
	OpToUpper  ExprOp = "$toUpper"
)

// Call applies an operator to argument expressions.
type Call struct {
	Op   ExprOp
	Args []Expr
}

func (*FieldRef) exprNode() {}
func (*Literal) exprNode()  {}
func (*Call) exprNode()     {}

// Field references a document field. A leading "$" is accepted and dropped.
func Field(name string) *FieldRef { return &FieldRef{Name: strings.TrimPrefix(name, "$")} }

// Lit wraps a constant.
func Lit(v interface{}) *Literal { return &Literal{Value: v} }

func Add(args ...Expr) *Call      { return &Call{Op: OpAdd, Args: args} }
func Subtract(a, b Expr) *Call    { return &Call{Op: OpSubtract, Args: []Expr{a, b}} }
func Multiply(args ...Expr) *Call { return &Call{Op: OpMultiply, Args: args} }
func Divide(a, b Expr) *Call      { return &Call{Op: OpDivide, Args: []Expr{a, b}} }
func Floor(e Expr) *Call          { return &Call{Op: OpFloor, Args: []Expr{e}} }
func ToString(e Expr) *Call       { return &Call{Op: OpToString, Args: []Expr{e}} }
func Concat(args ...Expr) *Call   { return &Call{Op: OpConcat, Args: args} }
func ToLower(e Expr) *Call        { return &Call{Op: OpToLower, Args: []Expr{e}} }
func ToUpper(e Expr) *Call        { return &Call{Op: OpToUpper, Args: []Expr{e}} }

// arity returns the minimum and maximum argument counts; max < 0 is unbounded.
func (op ExprOp) arity() (int, int, bool) {
	switch op {
	case OpAdd, OpMultiply, OpConcat:
		return 1, -1, true
	case OpSubtract, OpDivide:
		return 2, 2, true
	case OpFloor, OpToString, OpToLower, OpToUpper:
		return 1, 1, true
	}
	return 0, 0, false
}

// checkExpr validates e against the input schema and returns its result kind.
func checkExpr(e Expr, in Schema) (FieldKind, error) {
	switch x := e.(type) {
	case *FieldRef:
		if x == nil {
			return KindAny, invalidf("nil field reference")
		}
		return in.requireField(x.Name)
	case *Literal:
		if x == nil {
			return KindAny, invalidf("nil literal")
		}
		if _, isMap := asMap(x.Value); isMap {
			return KindAny, invalidf("document literals are not supported")
		}
		if _, isList := asSlice(x.Value); isList {
			return KindAny, invalidf("list literals are not supported")
		}
		return kindOf(x.Value), nil
	case *Call:
		if x == nil {
			return KindAny, invalidf("nil expression")
		}
		return checkCall(x, in)
	case nil:
		return KindAny, invalidf("missing expression")
	}
	return KindAny, invalidf("unsupported expression %T", e)
}

func checkCall(c *Call, in Schema) (FieldKind, error) {
	lo, hi, ok := c.Op.arity()
	if !ok {
		return KindAny, invalidf("unknown expression operator %q", c.Op)
	}
	if len(c.Args) < lo || (hi >= 0 && len(c.Args) > hi) {
		return KindAny, invalidf("%s takes %d..%d arguments, got %d", c.Op, lo, hi, len(c.Args))
	}

	kinds := make([]FieldKind, len(c.Args))
	for i, arg := range c.Args {
		k, err := checkExpr(arg, in)
		if err != nil {
			return KindAny, err
		}
		kinds[i] = k
	}

	switch c.Op {
	case OpAdd, OpSubtract, OpMultiply:
		allInt := true
		for _, k := range kinds {
			if !isNumericKind(k) {
				return KindAny, invalidf("%s requires numeric arguments, got %s", c.Op, k)
			}
			allInt = allInt && k == KindInt
		}
		if allInt {
			return KindInt, nil
		}
		return KindNumber, nil
	case OpDivide:
		for _, k := range kinds {
			if !isNumericKind(k) {
				return KindAny, invalidf("%s requires numeric arguments, got %s", c.Op, k)
			}
		}
		return KindNumber, nil
	case OpFloor:
		if !isNumericKind(kinds[0]) {
			return KindAny, invalidf("%s requires a numeric argument, got %s", c.Op, kinds[0])
		}
		return KindInt, nil
	case OpConcat, OpToLower, OpToUpper:
		for _, k := range kinds {
			if k != KindString && k != KindAny {
				return KindAny, invalidf("%s requires string arguments, got %s", c.Op, k)
			}
		}
		return KindString, nil
	default: // OpToString
		return KindString, nil
	}
}

func cloneExpr(e Expr) Expr {
	switch x := e.(type) {
	case *FieldRef:
		if x == nil {
			return x
		}
		c := *x
		return &c
	case *Literal:
		if x == nil {
			return x
		}
		return &Literal{Value: cloneValue(x.Value)}
	case *Call:
		if x == nil {
			return x
		}
		args := make([]Expr, len(x.Args))
		for i, a := range x.Args {
			args[i] = cloneExpr(a)
		}
		return &Call{Op: x.Op, Args: args}
	}
	return e
}
