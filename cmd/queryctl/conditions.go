package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robert-malhotra/querykit/predicate"
)

// conditionBuilder produces a filter expression once the criteria hands
// it the bound variable.
type conditionBuilder func(predicate.Var) predicate.Expression

// parseCondition reads a "Field op value" clause, e.g. "Age >= 30",
// "Email like %@example.com", "FirstName in John,Jane", "Email isnull".
func parseCondition(input string) (conditionBuilder, error) {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("condition %q: expected \"Field op value\"", input)
	}
	field := parts[0]
	op := strings.ToLower(parts[1])

	switch op {
	case "isnull":
		return func(v predicate.Var) predicate.Expression {
			return v.Field(field).IsNull()
		}, nil
	case "notnull":
		return func(v predicate.Var) predicate.Expression {
			return v.Field(field).IsNotNull()
		}, nil
	}

	if len(parts) < 3 {
		return nil, fmt.Errorf("condition %q: operator %q needs a value", input, op)
	}
	raw := parts[2]

	if op == "in" {
		values := parseValueList(raw)
		return func(v predicate.Var) predicate.Expression {
			return v.Field(field).In(values...)
		}, nil
	}

	value := parseValue(raw)
	return func(v predicate.Var) predicate.Expression {
		f := v.Field(field)
		switch op {
		case "=", "==", "eq":
			return f.Eq(value)
		case "!=", "<>", "ne":
			return f.Ne(value)
		case "<", "lt":
			return f.Lt(value)
		case "<=", "le":
			return f.Le(value)
		case ">", "gt":
			return f.Gt(value)
		case ">=", "ge":
			return f.Ge(value)
		case "like":
			return f.Like(fmt.Sprint(value))
		default:
			return nil
		}
	}, validateOperator(input, op)
}

func validateOperator(input, op string) error {
	switch op {
	case "=", "==", "eq", "!=", "<>", "ne", "<", "lt", "<=", "le", ">", "gt", ">=", "ge", "like":
		return nil
	default:
		return fmt.Errorf("condition %q: unknown operator %q", input, op)
	}
}

func parseValueList(raw string) []any {
	parts := strings.Split(raw, ",")
	values := make([]any, len(parts))
	for i, part := range parts {
		values[i] = parseValue(strings.TrimSpace(part))
	}
	return values
}

// parseValue keeps numbers and booleans typed so comparisons behave the
// same against both engines; everything else is a string. Single or
// double quotes preserve values with spaces.
func parseValue(raw string) any {
	if len(raw) >= 2 {
		if (raw[0] == '\'' && raw[len(raw)-1] == '\'') || (raw[0] == '"' && raw[len(raw)-1] == '"') {
			return raw[1 : len(raw)-1]
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
