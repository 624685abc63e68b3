package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

// Node описывает узел скомпилированного дерева предикатов.
type Node interface {
	fmt.Stringer
	// eval вычисляет узел и дописывает в failed описания невыполненных условий.
	eval(p model.UserProfile, failed *[]string) bool
}

// Comparison сравнивает поле анкеты с литералом.
type Comparison struct {
	Field string
	Op    Op

	field *field
	ints  []int64
	strs  []string
}

// And выполняется, когда выполнены все вложенные условия.
type And struct {
	Terms []Node
}

// Or выполняется, когда выполнено хотя бы одно вложенное условие.
type Or struct {
	Terms []Node
}

// Not инвертирует вложенное условие.
type Not struct {
	Term Node
}

func (c Comparison) eval(p model.UserProfile, failed *[]string) bool {
	if !c.field.present(p) {
		*failed = append(*failed, "missing: "+c.Field)
		return false
	}
	if c.field.valid != nil && !c.field.valid(p) {
		*failed = append(*failed, "invalid: "+c.Field)
		return false
	}

	var ok bool
	if c.field.kind == kindInt {
		ok = c.matchInt(*c.field.intValue(p))
	} else {
		ok = c.matchString(strings.TrimSpace(c.field.strValue(p)))
	}
	if !ok {
		*failed = append(*failed, c.String())
	}
	return ok
}

func (c Comparison) matchInt(v int64) bool {
	switch c.Op {
	case OpIn, OpNotIn:
		found := false
		for _, lit := range c.ints {
			if v == lit {
				found = true
				break
			}
		}
		return found == (c.Op == OpIn)
	default:
		return compareOrdered(c.Op, cmpInt(v, c.ints[0]))
	}
}

func (c Comparison) matchString(v string) bool {
	switch c.Op {
	case OpIn, OpNotIn:
		found := false
		for _, lit := range c.strs {
			if strings.EqualFold(v, lit) {
				found = true
				break
			}
		}
		return found == (c.Op == OpIn)
	case OpEq:
		return strings.EqualFold(v, c.strs[0])
	case OpNe:
		return !strings.EqualFold(v, c.strs[0])
	default:
		// Порядок определён только для уровня образования.
		left, _ := model.EducationRank(model.Education(v))
		right, _ := model.EducationRank(model.Education(c.strs[0]))
		return compareOrdered(c.Op, cmpInt(int64(left), int64(right)))
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareOrdered(op Op, cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

func (c Comparison) String() string {
	var lits []string
	if c.field != nil && c.field.kind == kindInt {
		for _, v := range c.ints {
			lits = append(lits, strconv.FormatInt(v, 10))
		}
	} else {
		lits = append(lits, c.strs...)
	}
	if c.Op.membership() {
		return fmt.Sprintf("%s %s [%s]", c.Field, c.Op, strings.Join(lits, ", "))
	}
	if len(lits) == 0 {
		return fmt.Sprintf("%s %s ?", c.Field, c.Op)
	}
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, lits[0])
}

// eval не прекращает обход после первого ложного условия, чтобы собрать все причины отказа.
func (a And) eval(p model.UserProfile, failed *[]string) bool {
	result := true
	for _, t := range a.Terms {
		if !t.eval(p, failed) {
			result = false
		}
	}
	return result
}

func (a And) String() string {
	return joinTerms(a.Terms, " AND ")
}

func (o Or) eval(p model.UserProfile, failed *[]string) bool {
	var local []string
	for _, t := range o.Terms {
		if t.eval(p, &local) {
			return true
		}
	}
	*failed = append(*failed, local...)
	return false
}

func (o Or) String() string {
	return joinTerms(o.Terms, " OR ")
}

func (n Not) eval(p model.UserProfile, failed *[]string) bool {
	var discard []string
	if n.Term.eval(p, &discard) {
		*failed = append(*failed, n.String())
		return false
	}
	return true
}

func (n Not) String() string {
	return "NOT (" + n.Term.String() + ")"
}

func joinTerms(terms []Node, sep string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		s := t.String()
		switch t.(type) {
		case And, Or:
			s = "(" + s + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep)
}
