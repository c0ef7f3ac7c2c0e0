// Package predicate represents boolean filter expressions as explicit
// syntax trees bound to a single variable, so that independently authored
// predicates can be merged, evaluated in memory, or translated to a
// storage backend without runtime code generation.
package predicate

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// Expression is a node in a predicate syntax tree.
type Expression interface {
	isExpr()
}

// Var is the variable a Lambda binds its body to.
type Var struct {
	Name string
}

func (Var) isExpr() {}

// FieldAccess reads a dotted path off a bound variable.
type FieldAccess struct {
	Base Var
	Path string
}

func (FieldAccess) isExpr() {}

// Literal is a constant value.
type Literal struct {
	Value any
}

func (Literal) isExpr() {}

// CompareOp enumerates comparison operators.
type CompareOp string

const (
	OpEq     CompareOp = "="
	OpNe     CompareOp = "<>"
	OpLt     CompareOp = "<"
	OpLe     CompareOp = "<="
	OpGt     CompareOp = ">"
	OpGe     CompareOp = ">="
	OpLike   CompareOp = "LIKE"
	OpIn     CompareOp = "IN"
	OpIsNull CompareOp = "IS NULL"
)

// Comparison applies a comparison operator to two operands. Right is nil
// for OpIsNull.
type Comparison struct {
	Op    CompareOp
	Left  Expression
	Right Expression
}

func (Comparison) isExpr() {}

// LogicalOp enumerates the binary boolean operators.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

// Logical joins two boolean subtrees.
type Logical struct {
	Op    LogicalOp
	Left  Expression
	Right Expression
}

func (Logical) isExpr() {}

// Not negates a boolean subtree.
type Not struct {
	Expr Expression
}

func (Not) isExpr() {}

// Lambda is a boolean expression bound to exactly one variable over one
// entity shape. The zero Lambda means "no predicate"; callers decide what
// that means (Criteria.Match treats it as false, the applier as no
// restriction).
type Lambda struct {
	Param Var
	Body  Expression
	Shape reflect.Type
}

// IsZero reports whether the lambda carries no predicate.
func (l Lambda) IsZero() bool {
	return l.Body == nil
}

var paramSeq atomic.Uint64

func freshVar() Var {
	return Var{Name: fmt.Sprintf("p%d", paramSeq.Add(1))}
}

// Bind builds a lambda over T's shape with a fresh bound variable.
func Bind[T any](build func(Var) Expression) Lambda {
	param := freshVar()
	return Lambda{
		Param: param,
		Body:  build(param),
		Shape: reflect.TypeOf((*T)(nil)).Elem(),
	}
}
