package predicate

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrShapeMismatch is returned when two lambdas over different entity
// shapes are combined.
var ErrShapeMismatch = errors.New("predicate: entity shapes differ")

// ShapeMismatchError carries the two shapes that failed to unify.
type ShapeMismatchError struct {
	Left  reflect.Type
	Right reflect.Type
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("predicate: entity shapes differ: %v vs %v", e.Left, e.Right)
}

func (e *ShapeMismatchError) Unwrap() error {
	return ErrShapeMismatch
}

// Combine merges two lambdas into one bound to p1's variable:
//
//	q(x) = p1(x) <op> p2[y -> x](x)
//
// Every reference to p2's variable in p2's body is rewritten to reference
// p1's variable before the two bodies are joined. The merge is pure; the
// inputs are never modified. An absent lambda on either side is returned
// as-is with no substitution; two absent lambdas yield the zero Lambda,
// whose meaning is fixed by the consumer.
func Combine(p1, p2 Lambda, op LogicalOp) (Lambda, error) {
	switch {
	case p1.IsZero() && p2.IsZero():
		return Lambda{}, nil
	case p1.IsZero():
		return p2, nil
	case p2.IsZero():
		return p1, nil
	}
	if p1.Shape != p2.Shape {
		return Lambda{}, &ShapeMismatchError{Left: p1.Shape, Right: p2.Shape}
	}
	return Lambda{
		Param: p1.Param,
		Body: Logical{
			Op:    op,
			Left:  p1.Body,
			Right: substitute(p2.Body, p2.Param, p1.Param),
		},
		Shape: p1.Shape,
	}, nil
}

// substitute rewrites every reference to the variable `from` into a
// reference to `to`. Nodes are values, so the rewrite allocates a new
// tree along changed paths and shares the rest.
func substitute(expr Expression, from, to Var) Expression {
	switch n := expr.(type) {
	case Var:
		if n == from {
			return to
		}
		return n
	case FieldAccess:
		if n.Base == from {
			n.Base = to
		}
		return n
	case Comparison:
		n.Left = substitute(n.Left, from, to)
		if n.Right != nil {
			n.Right = substitute(n.Right, from, to)
		}
		return n
	case Logical:
		n.Left = substitute(n.Left, from, to)
		n.Right = substitute(n.Right, from, to)
		return n
	case Not:
		n.Expr = substitute(n.Expr, from, to)
		return n
	default:
		// Literals and any future leaf nodes carry no variable references.
		return expr
	}
}
