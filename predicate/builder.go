package predicate

// FieldExpr exposes fluent comparison helpers for a field of a bound
// variable. Obtain one through Var.Field inside a Bind callback.
type FieldExpr struct {
	field FieldAccess
}

// Field starts a comparison against the named (possibly dotted) path.
func (v Var) Field(path string) FieldExpr {
	return FieldExpr{field: FieldAccess{Base: v, Path: path}}
}

// Eq creates an equality predicate. Nil values generate an IS NULL test.
func (f FieldExpr) Eq(value any) Expression {
	if value == nil {
		return Comparison{Op: OpIsNull, Left: f.field}
	}
	return Comparison{Op: OpEq, Left: f.field, Right: Literal{Value: value}}
}

// Ne creates an inequality predicate. Nil values generate a negated
// IS NULL test.
func (f FieldExpr) Ne(value any) Expression {
	if value == nil {
		return Not{Expr: Comparison{Op: OpIsNull, Left: f.field}}
	}
	return Comparison{Op: OpNe, Left: f.field, Right: Literal{Value: value}}
}

// Lt creates a less-than predicate.
func (f FieldExpr) Lt(value any) Expression {
	return Comparison{Op: OpLt, Left: f.field, Right: Literal{Value: value}}
}

// Le creates a less-than-or-equal predicate.
func (f FieldExpr) Le(value any) Expression {
	return Comparison{Op: OpLe, Left: f.field, Right: Literal{Value: value}}
}

// Gt creates a greater-than predicate.
func (f FieldExpr) Gt(value any) Expression {
	return Comparison{Op: OpGt, Left: f.field, Right: Literal{Value: value}}
}

// Ge creates a greater-than-or-equal predicate.
func (f FieldExpr) Ge(value any) Expression {
	return Comparison{Op: OpGe, Left: f.field, Right: Literal{Value: value}}
}

// Like creates a pattern match predicate using SQL LIKE wildcards
// (% and _).
func (f FieldExpr) Like(pattern string) Expression {
	return Comparison{Op: OpLike, Left: f.field, Right: Literal{Value: pattern}}
}

// In creates a set membership predicate.
func (f FieldExpr) In(values ...any) Expression {
	return Comparison{Op: OpIn, Left: f.field, Right: Literal{Value: values}}
}

// IsNull creates an IS NULL predicate.
func (f FieldExpr) IsNull() Expression {
	return Comparison{Op: OpIsNull, Left: f.field}
}

// IsNotNull creates a negated IS NULL predicate.
func (f FieldExpr) IsNotNull() Expression {
	return Not{Expr: Comparison{Op: OpIsNull, Left: f.field}}
}

// And joins expressions left to right under logical AND.
func And(exprs ...Expression) Expression {
	return joinLogical(OpAnd, exprs)
}

// Or joins expressions left to right under logical OR.
func Or(exprs ...Expression) Expression {
	return joinLogical(OpOr, exprs)
}

// Negate wraps an expression in a logical NOT.
func Negate(expr Expression) Expression {
	return Not{Expr: expr}
}

func joinLogical(op LogicalOp, exprs []Expression) Expression {
	var result Expression
	for _, expr := range exprs {
		if expr == nil {
			continue
		}
		if result == nil {
			result = expr
			continue
		}
		result = Logical{Op: op, Left: result, Right: expr}
	}
	return result
}
