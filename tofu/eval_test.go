package tofu

import (
	"testing"

	"github.com/soyesc/soyesc/data"
	"github.com/soyesc/soyesc/parse"
)

func TestEvalExpr(t *testing.T) {
	var tests = []struct {
		input    string
		expected interface{}
	}{
		{"0", 0},
		{"1+1", 2},
		{"1-1", 0},
		{"2*3", 6},
		{"7%2", 1},
		{"-5", -5},
		{"1.5+1.5", 3.0},
		{"'abc'", "abc"},
		{"'abc'+'def'", "abcdef"},
		{"true", true},
		{"null", nil},
	}

	for _, test := range tests {
		node, err := parse.Expr(test.input)
		if err != nil {
			t.Errorf("parse %q: %v", test.input, err)
			continue
		}

		actual, err := EvalExpr(node)
		if err != nil {
			t.Errorf("EvalExpr(%v): %v", test.input, err)
			continue
		}
		if actual != data.New(test.expected) {
			t.Errorf("EvalExpr(%v) => %v, expected %v", test.input, actual, test.expected)
		}
	}
}

func TestEvalExprRejectsNonLiteral(t *testing.T) {
	node, err := parse.Expr("$x")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := EvalExpr(node); err == nil {
		t.Error("expected an error evaluating a data reference as a constant, got none")
	}
}
