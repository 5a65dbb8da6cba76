// ABOUTME: Translation of filters, projections, sorts and updates into SQL
// ABOUTME: Field access goes through json_extract so expression indexes apply

package sqlstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nainya/bookquery/pkg/query"
)

// jsonPath returns the SQL literal path of a field. Field names are limited
// to identifier characters, so inlining them is safe.
func jsonPath(field string) string {
	return "'$." + field + "'"
}

// fieldValue extracts a field as an SQL value. Index definitions use the
// same text so the planner can match them.
func fieldValue(col, field string) string {
	return fmt.Sprintf("json_extract(%s, %s)", col, jsonPath(field))
}

// fieldJSON extracts a field as JSON so booleans and nested values keep
// their type when re-embedded with json_object.
func fieldJSON(col, field string) string {
	return fmt.Sprintf("%s -> %s", col, jsonPath(field))
}

// compileFilter renders a filter as a boolean SQL expression over col.
func compileFilter(f query.Filter, col string) (string, []interface{}, error) {
	root, err := query.ParseFilter(f, nil)
	if err != nil {
		return "", nil, err
	}
	var args []interface{}
	expr, err := compileNode(root, col, &args)
	if err != nil {
		return "", nil, err
	}
	return expr, args, nil
}

func compileNode(n query.Node, col string, args *[]interface{}) (string, error) {
	switch node := n.(type) {
	case *query.LogicalNode:
		if len(node.Children) == 0 {
			return "1", nil
		}
		parts := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			p, err := compileNode(child, col, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		if len(parts) == 1 {
			return parts[0], nil
		}
		joiner := " AND "
		if node.Operator == query.LogicalOr {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")", nil

	case *query.FieldNode:
		return compileField(node, col, args)
	}
	return "", fmt.Errorf("sqlstore: unsupported filter node %T", n)
}

func compileField(n *query.FieldNode, col string, args *[]interface{}) (string, error) {
	expr := fieldValue(col, n.Field)

	switch n.Operator {
	case query.OpEq:
		if n.Value == nil {
			return expr + " IS NULL", nil
		}
		*args = append(*args, n.Value)
		return expr + " = ?", nil
	case query.OpNe:
		if n.Value == nil {
			return expr + " IS NOT NULL", nil
		}
		*args = append(*args, n.Value)
		return expr + " IS NOT ?", nil
	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		*args = append(*args, n.Value)
		return expr + " " + comparison[n.Operator] + " ?", nil
	case query.OpIn, query.OpNin:
		vals, _ := n.Value.([]interface{})
		in, hasNull := inList(vals, args)
		if n.Operator == query.OpIn {
			switch {
			case in == "" && hasNull:
				return expr + " IS NULL", nil
			case in == "":
				return "0", nil
			case hasNull:
				return fmt.Sprintf("(%s IN (%s) OR %s IS NULL)", expr, in, expr), nil
			}
			return fmt.Sprintf("%s IN (%s)", expr, in), nil
		}
		switch {
		case in == "" && hasNull:
			return expr + " IS NOT NULL", nil
		case in == "":
			return "1", nil
		case hasNull:
			return fmt.Sprintf("(%s IS NOT NULL AND %s NOT IN (%s))", expr, expr, in), nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", expr, expr, in), nil
	case query.OpExists:
		check := fmt.Sprintf("json_type(%s, %s)", col, jsonPath(n.Field))
		if present, _ := n.Value.(bool); present {
			return check + " IS NOT NULL", nil
		}
		return check + " IS NULL", nil
	}
	return "", fmt.Errorf("sqlstore: unsupported operator %s", n.Operator)
}

var comparison = map[query.Operator]string{
	query.OpGt:  ">",
	query.OpGte: ">=",
	query.OpLt:  "<",
	query.OpLte: "<=",
}

func inList(vals []interface{}, args *[]interface{}) (string, bool) {
	marks := make([]string, 0, len(vals))
	hasNull := false
	for _, v := range vals {
		if v == nil {
			hasNull = true
			continue
		}
		marks = append(marks, "?")
		*args = append(*args, v)
	}
	return strings.Join(marks, ", "), hasNull
}

// compileProjection returns the select expression producing the projected
// document from col.
func compileProjection(p query.Projection, col string) string {
	if len(p) == 0 {
		return col
	}

	fields := make([]string, 0, len(p))
	inclusion := false
	for f, v := range p {
		if f == "_id" {
			continue
		}
		fields = append(fields, f)
		inclusion = v == 1
	}
	sort.Strings(fields)
	if len(fields) == 0 && p["_id"] == 1 {
		inclusion = true
	}

	if !inclusion {
		paths := make([]string, 0, len(p))
		if v, ok := p["_id"]; ok && v == 0 {
			paths = append(paths, jsonPath("_id"))
		}
		for _, f := range fields {
			paths = append(paths, jsonPath(f))
		}
		if len(paths) == 0 {
			return col
		}
		return fmt.Sprintf("json_remove(%s, %s)", col, strings.Join(paths, ", "))
	}

	pairs := make([]string, 0, len(fields)+1)
	if v, ok := p["_id"]; !ok || v == 1 {
		pairs = append(pairs, fmt.Sprintf("'_id', %s", fieldJSON(col, "_id")))
	}
	for _, f := range fields {
		pairs = append(pairs, fmt.Sprintf("'%s', %s", f, fieldJSON(col, f)))
	}
	return "json_object(" + strings.Join(pairs, ", ") + ")"
}

// compileSort renders an ORDER BY list.
func compileSort(fields []query.SortField, col string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		dir := "ASC"
		if f.Direction == query.Descending {
			dir = "DESC"
		}
		parts = append(parts, fieldValue(col, f.Field)+" "+dir)
	}
	return strings.Join(parts, ", ")
}

// compileUpdate returns an expression computing the updated document.
func compileUpdate(u query.Update, col string) (string, []interface{}, error) {
	expr := col
	var args []interface{}

	for _, f := range sortedKeys(u.Set) {
		raw, err := json.Marshal(u.Set[f])
		if err != nil {
			return "", nil, fmt.Errorf("sqlstore: encode $set %s: %w", f, err)
		}
		expr = fmt.Sprintf("json_set(%s, %s, json(?))", expr, jsonPath(f))
		args = append(args, string(raw))
	}
	for _, f := range sortedKeys(u.Inc) {
		expr = fmt.Sprintf("json_set(%s, %s, COALESCE(%s, 0) + ?)", expr, jsonPath(f), fieldValue(col, f))
		args = append(args, u.Inc[f])
	}
	if len(u.Unset) > 0 {
		paths := make([]string, len(u.Unset))
		for i, f := range u.Unset {
			paths[i] = jsonPath(f)
		}
		expr = fmt.Sprintf("json_remove(%s, %s)", expr, strings.Join(paths, ", "))
	}
	return expr, args, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
