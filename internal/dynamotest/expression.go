package dynamotest

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// evalCondition evaluates "a AND b OR c AND d" (AND binds tighter, no parentheses
// beyond a single wrapping pair). An empty expression is true.
func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	for _, disjunct := range splitKeyword(expr, " OR ") {
		all := true
		for _, term := range splitKeyword(disjunct, " AND ") {
			ok, err := evalTerm(stripParens(term), item, names, values)
			if err != nil {
				return false, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return true, nil
		}
	}
	return false, nil
}

func splitKeyword(expr, keyword string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(expr[i:], keyword) {
			parts = append(parts, strings.TrimSpace(expr[start:i]))
			start = i + len(keyword)
			i += len(keyword) - 1
		}
	}
	return append(parts, strings.TrimSpace(expr[start:]))
}

func stripParens(term string) string {
	term = strings.TrimSpace(term)
	if strings.HasPrefix(term, "(") && strings.HasSuffix(term, ")") {
		return strings.TrimSpace(term[1 : len(term)-1])
	}
	return term
}

var comparators = []string{"<>", ">=", "<=", "=", ">", "<"}

func evalTerm(term string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if arg, ok := call(term, "attribute_not_exists"); ok {
		return item[attrName(arg, names)] == nil, nil
	}
	if arg, ok := call(term, "attribute_exists"); ok {
		return item[attrName(arg, names)] != nil, nil
	}
	for _, op := range comparators {
		lhs, rhs, found := strings.Cut(term, op)
		if !found {
			continue
		}
		a, err := operand(strings.TrimSpace(lhs), item, names, values)
		if err != nil {
			return false, err
		}
		b, err := operand(strings.TrimSpace(rhs), item, names, values)
		if err != nil {
			return false, err
		}
		return compare(a, b, op)
	}
	return false, fmt.Errorf("dynamotest: unsupported condition %q", term)
}

func call(term, fn string) (string, bool) {
	if !strings.HasPrefix(term, fn+"(") || !strings.HasSuffix(term, ")") {
		return "", false
	}
	return strings.TrimSpace(term[len(fn)+1 : len(term)-1]), true
}

func attrName(path string, names map[string]string) string {
	if strings.HasPrefix(path, "#") {
		return names[path]
	}
	return path
}

func operand(token string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	if strings.HasPrefix(token, ":") {
		v, ok := values[token]
		if !ok {
			return nil, fmt.Errorf("dynamotest: missing expression value %s", token)
		}
		return v, nil
	}
	return item[attrName(token, names)], nil
}

func compare(a, b types.AttributeValue, op string) (bool, error) {
	if a == nil || b == nil {
		return false, nil
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return op == "<>", nil
		}
		x, err := decimal.NewFromString(av.Value)
		if err != nil {
			return false, err
		}
		y, err := decimal.NewFromString(bv.Value)
		if err != nil {
			return false, err
		}
		return ordered(x.Cmp(y), op), nil
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return op == "<>", nil
		}
		return ordered(strings.Compare(av.Value, bv.Value), op), nil
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return op == "<>", nil
		}
		switch op {
		case "=":
			return av.Value == bv.Value, nil
		case "<>":
			return av.Value != bv.Value, nil
		}
	}
	return false, fmt.Errorf("dynamotest: unsupported comparison %T %s %T", a, op, b)
}

func ordered(c int, op string) bool {
	switch op {
	case "=":
		return c == 0
	case "<>":
		return c != 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c < 0
	}
}

// applyUpdate evaluates a "SET a = :v, b = b - :q, c = if_not_exists(c, :z) + :one"
// expression against a copy of item. A missing item is created from key.
func applyUpdate(expr *string, item, key map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	out := clone(item)
	if out == nil {
		out = clone(key)
	}
	raw := strings.TrimSpace(deref(expr))
	if !strings.HasPrefix(strings.ToUpper(raw), "SET ") {
		return nil, fmt.Errorf("dynamotest: unsupported update expression %q", raw)
	}
	for _, assignment := range splitTopLevel(raw[4:], ',') {
		lhs, rhs, ok := strings.Cut(assignment, "=")
		if !ok {
			return nil, fmt.Errorf("dynamotest: malformed assignment %q", assignment)
		}
		v, err := valueExpr(strings.TrimSpace(rhs), item, names, values)
		if err != nil {
			return nil, err
		}
		out[attrName(strings.TrimSpace(lhs), names)] = v
	}
	return out, nil
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func valueExpr(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	for _, op := range []string{" + ", " - "} {
		lhs, rhs, found := strings.Cut(expr, op)
		if !found {
			continue
		}
		a, err := valueExpr(strings.TrimSpace(lhs), item, names, values)
		if err != nil {
			return nil, err
		}
		b, err := valueExpr(strings.TrimSpace(rhs), item, names, values)
		if err != nil {
			return nil, err
		}
		an, aok := a.(*types.AttributeValueMemberN)
		bn, bok := b.(*types.AttributeValueMemberN)
		if !aok || !bok {
			return nil, fmt.Errorf("dynamotest: arithmetic on non-number in %q", expr)
		}
		x, _ := decimal.NewFromString(an.Value)
		y, _ := decimal.NewFromString(bn.Value)
		if op == " + " {
			return &types.AttributeValueMemberN{Value: x.Add(y).String()}, nil
		}
		return &types.AttributeValueMemberN{Value: x.Sub(y).String()}, nil
	}
	if args, ok := call(expr, "if_not_exists"); ok {
		parts := splitTopLevel(args, ',')
		if len(parts) != 2 {
			return nil, fmt.Errorf("dynamotest: malformed if_not_exists %q", expr)
		}
		if v := item[attrName(parts[0], names)]; v != nil {
			return v, nil
		}
		return operand(parts[1], item, names, values)
	}
	v, err := operand(expr, item, names, values)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("dynamotest: attribute %q does not exist", expr)
	}
	return v, nil
}
