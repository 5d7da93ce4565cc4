package tofu

import (
	"fmt"

	"github.com/soyesc/soyesc/ast"
	"github.com/soyesc/soyesc/data"
)

// state carries the running result of a literal expression evaluation.
// It supports only the node types that can appear in a standalone
// expression with no enclosing template (no data refs, no calls).
type state struct {
	val data.Value
	err error
}

// EvalExpr evaluates the given expression node and returns the result.
// It is used to resolve the values of a globals file, where each
// expression is self-contained (no access to template data).
func EvalExpr(node ast.Node) (val data.Value, err error) {
	s := &state{}
	s.walk(node)
	return s.val, s.err
}

func (s *state) errorf(format string, args ...interface{}) {
	if s.err == nil {
		s.err = fmt.Errorf(format, args...)
	}
}

func (s *state) walk(node ast.Node) {
	if s.err != nil {
		return
	}
	switch node := node.(type) {
	case *ast.NullNode:
		s.val = data.Null{}
	case *ast.BoolNode:
		s.val = data.Bool(node.True)
	case *ast.IntNode:
		s.val = data.Int(node.Value)
	case *ast.FloatNode:
		s.val = data.Float(node.Value)
	case *ast.StringNode:
		s.val = data.String(node.Value)
	case *ast.NegateNode:
		switch arg := s.eval(node.Arg).(type) {
		case data.Int:
			s.val = data.Int(-arg)
		case data.Float:
			s.val = data.Float(-arg)
		default:
			s.errorf("can not negate non-number: %q", arg.String())
		}
	case *ast.AddNode:
		arg1, arg2 := s.eval2(node.Arg1, node.Arg2)
		switch {
		case isInt(arg1) && isInt(arg2):
			s.val = data.Int(arg1.(data.Int) + arg2.(data.Int))
		case isString(arg1) || isString(arg2):
			s.val = data.String(arg1.String() + arg2.String())
		default:
			s.val = data.Float(toFloat(arg1) + toFloat(arg2))
		}
	case *ast.SubNode:
		arg1, arg2 := s.eval2(node.Arg1, node.Arg2)
		if isInt(arg1) && isInt(arg2) {
			s.val = data.Int(arg1.(data.Int) - arg2.(data.Int))
		} else {
			s.val = data.Float(toFloat(arg1) - toFloat(arg2))
		}
	case *ast.DivNode:
		arg1, arg2 := s.eval2(node.Arg1, node.Arg2)
		s.val = data.Float(toFloat(arg1) / toFloat(arg2))
	case *ast.MulNode:
		arg1, arg2 := s.eval2(node.Arg1, node.Arg2)
		if isInt(arg1) && isInt(arg2) {
			s.val = data.Int(arg1.(data.Int) * arg2.(data.Int))
		} else {
			s.val = data.Float(toFloat(arg1) * toFloat(arg2))
		}
	case *ast.ModNode:
		arg1, arg2 := s.eval2(node.Arg1, node.Arg2)
		s.val = data.Int(arg1.(data.Int) % arg2.(data.Int))
	default:
		s.errorf("globals: expression %q is not a constant literal", node.String())
	}
}

func (s *state) eval(n ast.Node) data.Value {
	s.walk(n)
	return s.val
}

func (s *state) eval2(n1, n2 ast.Node) (data.Value, data.Value) {
	return s.eval(n1), s.eval(n2)
}

func isInt(v data.Value) bool {
	_, ok := v.(data.Int)
	return ok
}

func isString(v data.Value) bool {
	_, ok := v.(data.String)
	return ok
}

func toFloat(v data.Value) float64 {
	switch v := v.(type) {
	case data.Int:
		return float64(v)
	case data.Float:
		return float64(v)
	default:
		return 0
	}
}
