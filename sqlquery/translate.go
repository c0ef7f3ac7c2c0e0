package sqlquery

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/robert-malhotra/querykit/engine"
	"github.com/robert-malhotra/querykit/predicate"
)

// translate lowers a predicate syntax tree into a squirrel condition.
// Field paths are resolved through the table's column map; an unmapped
// path is an ErrInvalidSelector.
func translate(expr predicate.Expression, columns map[string]string) (sq.Sqlizer, error) {
	switch n := expr.(type) {
	case predicate.Logical:
		left, err := translate(n.Left, columns)
		if err != nil {
			return nil, err
		}
		right, err := translate(n.Right, columns)
		if err != nil {
			return nil, err
		}
		if n.Op == predicate.OpOr {
			return sq.Or{left, right}, nil
		}
		return sq.And{left, right}, nil
	case predicate.Not:
		inner, err := translate(n.Expr, columns)
		if err != nil {
			return nil, err
		}
		return notSqlizer{inner: inner}, nil
	case predicate.Comparison:
		return translateComparison(n, columns)
	default:
		return nil, fmt.Errorf("%w: %T is not a condition", engine.ErrInvalidSelector, expr)
	}
}

func translateComparison(c predicate.Comparison, columns map[string]string) (sq.Sqlizer, error) {
	field, ok := c.Left.(predicate.FieldAccess)
	if !ok {
		return nil, fmt.Errorf("%w: comparison left operand must be a field, got %T", engine.ErrInvalidSelector, c.Left)
	}
	column, err := resolveColumn(field.Path, columns)
	if err != nil {
		return nil, err
	}

	if c.Op == predicate.OpIsNull {
		return sq.Eq{column: nil}, nil
	}

	// Field-to-field comparisons render both sides as columns.
	if rightField, ok := c.Right.(predicate.FieldAccess); ok {
		rightColumn, err := resolveColumn(rightField.Path, columns)
		if err != nil {
			return nil, err
		}
		op, ok := sqlCompareOp(c.Op)
		if !ok {
			return nil, fmt.Errorf("%w: operator %q between two fields", engine.ErrInvalidSelector, c.Op)
		}
		return sq.Expr(fmt.Sprintf("%s %s %s", column, op, rightColumn)), nil
	}

	lit, ok := c.Right.(predicate.Literal)
	if !ok {
		return nil, fmt.Errorf("%w: comparison right operand must be a literal, got %T", engine.ErrInvalidSelector, c.Right)
	}
	value := lit.Value

	switch c.Op {
	case predicate.OpEq:
		return sq.Eq{column: value}, nil
	case predicate.OpNe:
		return sq.NotEq{column: value}, nil
	case predicate.OpLt:
		return sq.Lt{column: value}, nil
	case predicate.OpLe:
		return sq.LtOrEq{column: value}, nil
	case predicate.OpGt:
		return sq.Gt{column: value}, nil
	case predicate.OpGe:
		return sq.GtOrEq{column: value}, nil
	case predicate.OpLike:
		return sq.Like{column: value}, nil
	case predicate.OpIn:
		return sq.Eq{column: value}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operator %q", engine.ErrInvalidSelector, c.Op)
	}
}

func sqlCompareOp(op predicate.CompareOp) (string, bool) {
	switch op {
	case predicate.OpEq:
		return "=", true
	case predicate.OpNe:
		return "<>", true
	case predicate.OpLt:
		return "<", true
	case predicate.OpLe:
		return "<=", true
	case predicate.OpGt:
		return ">", true
	case predicate.OpGe:
		return ">=", true
	default:
		return "", false
	}
}

func resolveColumn(path string, columns map[string]string) (string, error) {
	column, ok := columns[path]
	if !ok {
		return "", fmt.Errorf("%w: no column mapped for %q", engine.ErrInvalidSelector, path)
	}
	return column, nil
}

// notSqlizer negates a condition; squirrel has no NOT combinator of its
// own.
type notSqlizer struct {
	inner sq.Sqlizer
}

func (n notSqlizer) ToSql() (string, []any, error) {
	sqlStr, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sqlStr + ")", args, nil
}
