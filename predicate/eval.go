package predicate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// ErrUnresolvedField is returned when a field path cannot be resolved
// against an entity's shape.
var ErrUnresolvedField = errors.New("predicate: unresolved field")

// ErrNotBoolean is returned when an expression evaluated as a predicate
// does not produce a boolean.
var ErrNotBoolean = errors.New("predicate: expression is not boolean")

// Eval evaluates a lambda against a single in-memory entity. The entity
// may be a struct, a pointer to one, or a map with string keys. A field
// path that does not exist on a struct shape resolves to
// ErrUnresolvedField; a missing map key is treated as a null value.
func Eval(p Lambda, entity any) (bool, error) {
	if p.IsZero() {
		return false, fmt.Errorf("%w: empty lambda", ErrNotBoolean)
	}
	return evalBool(p.Body, p.Param, entity)
}

func evalBool(expr Expression, param Var, entity any) (bool, error) {
	switch n := expr.(type) {
	case Comparison:
		return evalComparison(n, param, entity)
	case Logical:
		left, err := evalBool(n.Left, param, entity)
		if err != nil {
			return false, err
		}
		// Short-circuit; the right subtree still had its paths validated
		// when the row shape matched, and row-level laziness matches how
		// storage engines evaluate boolean operators.
		if n.Op == OpAnd && !left {
			return false, nil
		}
		if n.Op == OpOr && left {
			return true, nil
		}
		return evalBool(n.Right, param, entity)
	case Not:
		inner, err := evalBool(n.Expr, param, entity)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case FieldAccess:
		value, err := evalValue(n, param, entity)
		if err != nil {
			return false, err
		}
		b, ok := value.(bool)
		if !ok {
			return false, fmt.Errorf("%w: field %q is %T", ErrNotBoolean, n.Path, value)
		}
		return b, nil
	case Literal:
		b, ok := n.Value.(bool)
		if !ok {
			return false, fmt.Errorf("%w: literal %v", ErrNotBoolean, n.Value)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %T", ErrNotBoolean, expr)
	}
}

func evalComparison(c Comparison, param Var, entity any) (bool, error) {
	left, err := evalValue(c.Left, param, entity)
	if err != nil {
		return false, err
	}

	if c.Op == OpIsNull {
		return left == nil, nil
	}

	right, err := evalValue(c.Right, param, entity)
	if err != nil {
		return false, err
	}

	switch c.Op {
	case OpEq:
		return equalValues(left, right), nil
	case OpNe:
		return !equalValues(left, right), nil
	case OpLt, OpLe, OpGt, OpGe:
		// SQL tri-state: an ordering comparison against NULL is unknown,
		// and unknown rows are excluded. The sort path still rejects nil
		// through CompareValues.
		if left == nil || right == nil {
			return false, nil
		}
		cmp, err := CompareValues(left, right)
		if err != nil {
			return false, err
		}
		switch c.Op {
		case OpLt:
			return cmp < 0, nil
		case OpLe:
			return cmp <= 0, nil
		case OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case OpLike:
		return evalLike(left, right)
	case OpIn:
		return evalIn(left, right)
	default:
		return false, fmt.Errorf("predicate: unsupported operator %q", c.Op)
	}
}

func evalValue(expr Expression, param Var, entity any) (any, error) {
	switch n := expr.(type) {
	case Literal:
		return n.Value, nil
	case FieldAccess:
		if n.Base != param {
			return nil, fmt.Errorf("predicate: unbound variable %q", n.Base.Name)
		}
		return FieldValue(entity, n.Path)
	case Var:
		if n != param {
			return nil, fmt.Errorf("predicate: unbound variable %q", n.Name)
		}
		return entity, nil
	default:
		return nil, fmt.Errorf("predicate: %T is not a value expression", expr)
	}
}

// FieldValue resolves a dotted path against an entity. Intermediate nil
// pointers and missing map keys resolve to nil; a missing struct field is
// an ErrUnresolvedField.
func FieldValue(entity any, path string) (any, error) {
	v := reflect.ValueOf(entity)
	for _, seg := range strings.Split(path, ".") {
		v = indirect(v)
		if !v.IsValid() {
			return nil, nil
		}
		switch v.Kind() {
		case reflect.Struct:
			field := v.FieldByName(seg)
			if !field.IsValid() {
				return nil, fmt.Errorf("%w: %v has no field %q", ErrUnresolvedField, v.Type(), seg)
			}
			v = field
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String {
				return nil, fmt.Errorf("%w: map keyed by %v", ErrUnresolvedField, v.Type().Key())
			}
			v = v.MapIndex(reflect.ValueOf(seg).Convert(v.Type().Key()))
			if !v.IsValid() {
				return nil, nil
			}
		default:
			return nil, fmt.Errorf("%w: cannot read %q from %v", ErrUnresolvedField, seg, v.Kind())
		}
	}
	v = indirect(v)
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// CompareValues orders two scalar values. Numeric kinds are compared
// after coercion to float64; strings, booleans and time.Time are compared
// natively. Nil or cross-kind operands are an error.
func CompareValues(a, b any) (int, error) {
	if a == nil || b == nil {
		return 0, fmt.Errorf("predicate: cannot order nil value")
	}

	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("predicate: cannot compare %T with %T", a, b)
		}
		return at.Compare(bt), nil
	}

	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, fmt.Errorf("predicate: cannot compare %T with %T", a, b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("predicate: cannot compare %T with %T", a, b)
		}
		return strings.Compare(as, bs), nil
	}

	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, fmt.Errorf("predicate: cannot compare %T with %T", a, b)
		}
		switch {
		case ab == bb:
			return 0, nil
		case !ab:
			return -1, nil
		default:
			return 1, nil
		}
	}

	return 0, fmt.Errorf("predicate: cannot compare %T with %T", a, b)
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, err := CompareValues(a, b); err == nil {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func evalLike(value, pattern any) (bool, error) {
	s, ok := value.(string)
	if !ok {
		if value == nil {
			return false, nil
		}
		return false, fmt.Errorf("predicate: LIKE applied to %T", value)
	}
	p, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("predicate: LIKE pattern is %T", pattern)
	}
	re, err := likeRegexp(p)
	if err != nil {
		return false, err
	}
	return re.MatchString(s), nil
}

// likeRegexp converts SQL LIKE wildcards into an anchored regexp.
func likeRegexp(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func evalIn(value, list any) (bool, error) {
	items, ok := list.([]any)
	if !ok {
		rv := reflect.ValueOf(list)
		if !rv.IsValid() || rv.Kind() != reflect.Slice {
			return false, fmt.Errorf("predicate: IN list is %T", list)
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}
	for _, item := range items {
		if equalValues(value, item) {
			return true, nil
		}
	}
	return false, nil
}
