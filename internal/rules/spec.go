// Package rules реализует проверку условий участия в программах: дерево предикатов над анкетой
// пользователя и его вычисление.
package rules

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mmeshcher/scheme-eligibility/internal/validation"
)

// ErrMalformed возвращается при разборе некорректного правила.
var ErrMalformed = errors.New("malformed rule")

// Spec описывает правило в том виде, в котором оно хранится в каталоге.
// Узел задаёт ровно одно из: all, any, not или сравнение field/op/value.
type Spec struct {
	All   []Spec `json:"all,omitempty" yaml:"all,omitempty"`
	Any   []Spec `json:"any,omitempty" yaml:"any,omitempty"`
	Not   *Spec  `json:"not,omitempty" yaml:"not,omitempty"`
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	Op    string `json:"op,omitempty" yaml:"op,omitempty"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Op задаёт оператор сравнения.
type Op string

const (
	OpEq    Op = "="
	OpNe    Op = "!="
	OpLt    Op = "<"
	OpLe    Op = "<="
	OpGt    Op = ">"
	OpGe    Op = ">="
	OpIn    Op = "in"
	OpNotIn Op = "not in"
)

var opAliases = map[string]Op{
	"=":      OpEq,
	"==":     OpEq,
	"eq":     OpEq,
	"!=":     OpNe,
	"≠":      OpNe,
	"<>":     OpNe,
	"ne":     OpNe,
	"<":      OpLt,
	"lt":     OpLt,
	"<=":     OpLe,
	"≤":      OpLe,
	"le":     OpLe,
	">":      OpGt,
	"gt":     OpGt,
	">=":     OpGe,
	"≥":      OpGe,
	"ge":     OpGe,
	"in":     OpIn,
	"not in": OpNotIn,
	"not_in": OpNotIn,
	"nin":    OpNotIn,
}

func parseOp(s string) (Op, bool) {
	op, ok := opAliases[strings.ToLower(strings.Join(strings.Fields(s), " "))]
	return op, ok
}

func (o Op) ordering() bool {
	return o == OpLt || o == OpLe || o == OpGt || o == OpGe
}

func (o Op) membership() bool {
	return o == OpIn || o == OpNotIn
}

// Compile проверяет документ правила и строит дерево предикатов.
// Пустой документ (nil) означает программу без ограничений и возвращает nil.
func Compile(spec *Spec) (Node, error) {
	if spec == nil {
		return nil, nil
	}
	return compile(*spec, "rule")
}

func compile(s Spec, path string) (Node, error) {
	kinds := 0
	if len(s.All) > 0 {
		kinds++
	}
	if len(s.Any) > 0 {
		kinds++
	}
	if s.Not != nil {
		kinds++
	}
	if s.Field != "" || s.Op != "" || s.Value != nil {
		kinds++
	}
	switch {
	case kinds == 0:
		return nil, fmt.Errorf("%w: %s: empty node", ErrMalformed, path)
	case kinds > 1:
		return nil, fmt.Errorf("%w: %s: node must have exactly one of all, any, not, field", ErrMalformed, path)
	}

	switch {
	case len(s.All) > 0:
		terms, err := compileTerms(s.All, path+".all")
		if err != nil {
			return nil, err
		}
		return And{Terms: terms}, nil
	case len(s.Any) > 0:
		terms, err := compileTerms(s.Any, path+".any")
		if err != nil {
			return nil, err
		}
		return Or{Terms: terms}, nil
	case s.Not != nil:
		inner, err := compile(*s.Not, path+".not")
		if err != nil {
			return nil, err
		}
		return Not{Term: inner}, nil
	default:
		return compileComparison(s, path)
	}
}

func compileTerms(specs []Spec, path string) ([]Node, error) {
	terms := make([]Node, 0, len(specs))
	for i, s := range specs {
		n, err := compile(s, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		terms = append(terms, n)
	}
	return terms, nil
}

func compileComparison(s Spec, path string) (Node, error) {
	f, ok := lookupField(s.Field)
	if !ok {
		if s.Field == "" {
			return nil, fmt.Errorf("%w: %s: field is required", ErrMalformed, path)
		}
		return nil, fmt.Errorf("%w: %s: unknown field %q", ErrMalformed, path, s.Field)
	}
	op, ok := parseOp(s.Op)
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown operator %q", ErrMalformed, path, s.Op)
	}
	if s.Value == nil {
		return nil, fmt.Errorf("%w: %s: value is required", ErrMalformed, path)
	}

	c := Comparison{field: f, Field: f.name, Op: op}

	if f.kind == kindString && op.ordering() && !f.ordered {
		return nil, fmt.Errorf("%w: %s: operator %q is not supported for field %q", ErrMalformed, path, op, f.name)
	}

	if op.membership() {
		list, ok := s.Value.([]any)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("%w: %s: operator %q requires a non-empty list", ErrMalformed, path, op)
		}
		for _, item := range list {
			if err := c.addLiteral(item); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
			}
		}
		return c, nil
	}

	if err := c.addLiteral(s.Value); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return c, nil
}

func (c *Comparison) addLiteral(v any) error {
	if c.field.kind == kindInt {
		n, ok := toInt(v)
		if !ok {
			return fmt.Errorf("field %q expects an integer, got %v", c.Field, v)
		}
		c.ints = append(c.ints, n)
		return nil
	}

	str, ok := v.(string)
	if !ok {
		return fmt.Errorf("field %q expects a string, got %v", c.Field, v)
	}
	str = strings.TrimSpace(str)
	if len(c.field.allowed) > 0 {
		canonical, found := validation.Canonical(str, c.field.allowed)
		if !found {
			return fmt.Errorf("field %q: %q is not one of %v", c.Field, str, c.field.allowed)
		}
		str = canonical
	}
	c.strs = append(c.strs, str)
	return nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
