package query

import (
	"github.com/tidwall/gjson"
)

// node is one operator of a compiled expression tree.
type node interface {
	eval(doc []byte) bool
}

type andNode struct{ left, right node }

func (n *andNode) eval(doc []byte) bool { return n.left.eval(doc) && n.right.eval(doc) }

type orNode struct{ left, right node }

func (n *orNode) eval(doc []byte) bool { return n.left.eval(doc) || n.right.eval(doc) }

type notNode struct{ inner node }

func (n *notNode) eval(doc []byte) bool { return !n.inner.eval(doc) }

// existsNode is a bare path: truthy when present and neither null nor
// false.
type existsNode struct{ path string }

func (n *existsNode) eval(doc []byte) bool {
	r := lookup(doc, n.path)
	return r.Exists() && r.Type != gjson.Null && r.Type != gjson.False
}

type cmpOp uint8

const (
	opEq cmpOp = iota
	opNe
	opLt
	opLe
	opGt
	opGe
)

func (o cmpOp) String() string {
	switch o {
	case opEq:
		return "=="
	case opNe:
		return "!="
	case opLt:
		return "<"
	case opLe:
		return "<="
	case opGt:
		return ">"
	case opGe:
		return ">="
	default:
		return "?"
	}
}

type litKind uint8

const (
	litString litKind = iota
	litNumber
	litBool
	litNull
)

type literal struct {
	kind litKind
	str  string
	num  float64
	b    bool
}

type cmpNode struct {
	path string
	op   cmpOp
	lit  literal
}

func (n *cmpNode) eval(doc []byte) bool {
	r := lookup(doc, n.path)
	switch n.op {
	case opEq:
		return equals(r, n.lit)
	case opNe:
		return !equals(r, n.lit)
	default:
		return ordered(r, n.op, n.lit)
	}
}

// equals compares strictly by type: a number never equals a string of
// the same digits. Null compares equal to an absent field.
func equals(r gjson.Result, lit literal) bool {
	switch lit.kind {
	case litNull:
		return !r.Exists() || r.Type == gjson.Null
	case litString:
		return r.Type == gjson.String && r.Str == lit.str
	case litNumber:
		return r.Type == gjson.Number && r.Num == lit.num
	case litBool:
		switch r.Type {
		case gjson.True:
			return lit.b
		case gjson.False:
			return !lit.b
		default:
			return false
		}
	default:
		return false
	}
}

// ordered applies <, <=, >, >=. Numbers compare numerically, strings
// lexicographically; any type mismatch is false.
func ordered(r gjson.Result, op cmpOp, lit literal) bool {
	switch lit.kind {
	case litNumber:
		if r.Type != gjson.Number {
			return false
		}
		return cmpFloat(r.Num, op, lit.num)
	case litString:
		if r.Type != gjson.String {
			return false
		}
		return cmpString(r.Str, op, lit.str)
	default:
		return false
	}
}

func cmpFloat(a float64, op cmpOp, b float64) bool {
	switch op {
	case opLt:
		return a < b
	case opLe:
		return a <= b
	case opGt:
		return a > b
	case opGe:
		return a >= b
	default:
		return false
	}
}

func cmpString(a string, op cmpOp, b string) bool {
	switch op {
	case opLt:
		return a < b
	case opLe:
		return a <= b
	case opGt:
		return a > b
	case opGe:
		return a >= b
	default:
		return false
	}
}
