// ABOUTME: Filter parsing into an abstract syntax tree
// ABOUTME: Checks operators structurally and values against a schema

package query

import (
	"sort"
	"strings"
)

// Operator is a comparison operator inside a Cond.
type Operator string

const (
	OpEq     Operator = "$eq"
	OpNe     Operator = "$ne"
	OpGt     Operator = "$gt"
	OpGte    Operator = "$gte"
	OpLt     Operator = "$lt"
	OpLte    Operator = "$lte"
	OpIn     Operator = "$in"
	OpNin    Operator = "$nin"
	OpExists Operator = "$exists"
)

const (
	LogicalAnd = "$and"
	LogicalOr  = "$or"
)

// Node is a parsed filter element: a *FieldNode or a *LogicalNode.
type Node interface {
	filterNode()
}

// FieldNode applies one operator to one field.
type FieldNode struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// LogicalNode joins child nodes with $and or $or.
type LogicalNode struct {
	Operator string
	Children []Node
}

func (*FieldNode) filterNode()   {}
func (*LogicalNode) filterNode() {}

// ParseFilter converts a filter into a tree whose root is an implicit $and.
// Keys are visited in sorted order so the tree shape is deterministic. A nil
// schema skips field and value checks.
func ParseFilter(f Filter, schema Schema) (*LogicalNode, error) {
	return parseMap(f, schema)
}

func parseMap(m map[string]interface{}, schema Schema) (*LogicalNode, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := &LogicalNode{Operator: LogicalAnd}
	for _, key := range keys {
		val := m[key]
		if key == LogicalAnd || key == LogicalOr {
			node, err := parseLogical(key, val, schema)
			if err != nil {
				return nil, err
			}
			root.Children = append(root.Children, node)
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, invalidf("unknown top-level operator %q", key)
		}

		kind, err := schema.requireField(key)
		if err != nil {
			return nil, err
		}

		ops, isCond := asCond(val)
		if !isCond {
			if err := checkComparable(key, kind, OpEq, val); err != nil {
				return nil, err
			}
			root.Children = append(root.Children, &FieldNode{Field: key, Operator: OpEq, Value: val})
			continue
		}
		if len(ops) == 0 {
			return nil, invalidf("empty condition for field %q", key)
		}

		opKeys := make([]string, 0, len(ops))
		for op := range ops {
			opKeys = append(opKeys, op)
		}
		sort.Strings(opKeys)
		for _, op := range opKeys {
			node, err := parseCondition(key, kind, Operator(op), ops[op])
			if err != nil {
				return nil, err
			}
			root.Children = append(root.Children, node)
		}
	}
	return root, nil
}

func parseLogical(op string, val interface{}, schema Schema) (Node, error) {
	list, ok := asSlice(val)
	if !ok {
		return nil, invalidf("value for %s must be a list", op)
	}
	if len(list) == 0 {
		return nil, invalidf("%s requires at least one filter", op)
	}
	node := &LogicalNode{Operator: op, Children: make([]Node, 0, len(list))}
	for _, item := range list {
		sub, ok := asMap(item)
		if !ok {
			return nil, invalidf("element of %s must be a filter", op)
		}
		child, err := parseMap(sub, schema)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func parseCondition(field string, kind FieldKind, op Operator, val interface{}) (Node, error) {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		if err := checkComparable(field, kind, op, val); err != nil {
			return nil, err
		}
	case OpIn, OpNin:
		list, ok := asSlice(val)
		if !ok {
			return nil, invalidf("%s on %q requires a list", op, field)
		}
		for _, item := range list {
			if err := checkComparable(field, kind, OpEq, item); err != nil {
				return nil, err
			}
		}
		val = list
	case OpExists:
		if _, ok := val.(bool); !ok {
			return nil, invalidf("$exists on %q requires a boolean", field)
		}
	default:
		return nil, invalidf("unknown operator %q on field %q", op, field)
	}
	return &FieldNode{Field: field, Operator: op, Value: val}, nil
}

func checkComparable(field string, kind FieldKind, op Operator, val interface{}) error {
	if val == nil {
		if op == OpEq || op == OpNe {
			return nil
		}
		return invalidf("%s on %q cannot compare against null", op, field)
	}
	if _, isMap := asMap(val); isMap {
		return invalidf("field %q cannot be compared with a document", field)
	}
	if _, isList := asSlice(val); isList {
		return invalidf("field %q cannot be compared with a list", field)
	}
	return checkValue(field, kind, val)
}

// asCond reports whether v is an operator map: every key starts with "$".
func asCond(v interface{}) (map[string]interface{}, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return m, ok
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Filter:
		return m, true
	case Cond:
		return m, true
	}
	return nil, false
}
