// Package where turns small filter expressions such as
//
//	guildId == "g1" && "sword" in tags
//
// into store constraints, and compiles full expressions into client-side
// predicates.
package where

import (
	"errors"
	"fmt"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	exprvm "github.com/expr-lang/expr/vm"

	"resourcesync/pkg/domain"
)

// ErrUnsupported reports an expression that has no constraint form.
var ErrUnsupported = errors.New("unsupported filter expression")

// idName is the identifier that refers to the document id.
const idName = "id"

// Parse converts a conjunction of comparisons into constraints. Supported
// terms are `field == literal`, `field in [literals]` and
// `literal in field`; terms are joined with && or and.
func Parse(src string) ([]domain.Constraint, error) {
	if src == "" {
		return nil, nil
	}
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}
	var out []domain.Constraint
	if err := collect(tree.Node, &out); err != nil {
		return nil, fmt.Errorf("%q: %w", src, err)
	}
	return out, nil
}

func collect(node ast.Node, out *[]domain.Constraint) error {
	bin, ok := node.(*ast.BinaryNode)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, node.String())
	}
	switch bin.Operator {
	case "&&", "and":
		if err := collect(bin.Left, out); err != nil {
			return err
		}
		return collect(bin.Right, out)
	case "==":
		return comparison(bin, out)
	case "in":
		return membership(bin, out)
	default:
		return fmt.Errorf("%w: operator %q", ErrUnsupported, bin.Operator)
	}
}

func comparison(bin *ast.BinaryNode, out *[]domain.Constraint) error {
	field, lit := bin.Left, bin.Right
	if _, ok := field.(*ast.IdentifierNode); !ok {
		field, lit = lit, field
	}
	ident, ok := field.(*ast.IdentifierNode)
	if !ok {
		return fmt.Errorf("%w: %s needs a field operand", ErrUnsupported, bin.String())
	}
	v, err := literal(lit)
	if err != nil {
		return err
	}
	if ident.Value == idName {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: id compares to strings only", ErrUnsupported)
		}
		*out = append(*out, domain.IDIn([]string{s}))
		return nil
	}
	*out = append(*out, domain.Eq(ident.Value, v))
	return nil
}

func membership(bin *ast.BinaryNode, out *[]domain.Constraint) error {
	if ident, ok := bin.Left.(*ast.IdentifierNode); ok {
		arr, ok := bin.Right.(*ast.ArrayNode)
		if !ok {
			return fmt.Errorf("%w: %s needs a list literal", ErrUnsupported, bin.String())
		}
		values := make([]any, 0, len(arr.Nodes))
		for _, n := range arr.Nodes {
			v, err := literal(n)
			if err != nil {
				return err
			}
			values = append(values, v)
		}
		if ident.Value == idName {
			ids := make([]string, 0, len(values))
			for _, v := range values {
				s, ok := v.(string)
				if !ok {
					return fmt.Errorf("%w: id compares to strings only", ErrUnsupported)
				}
				ids = append(ids, s)
			}
			*out = append(*out, domain.IDIn(ids))
			return nil
		}
		*out = append(*out, domain.In(ident.Value, values))
		return nil
	}
	ident, ok := bin.Right.(*ast.IdentifierNode)
	if !ok {
		return fmt.Errorf("%w: %s needs a field operand", ErrUnsupported, bin.String())
	}
	v, err := literal(bin.Left)
	if err != nil {
		return err
	}
	*out = append(*out, domain.Contains(ident.Value, v))
	return nil
}

func literal(node ast.Node) (any, error) {
	switch n := node.(type) {
	case *ast.StringNode:
		return n.Value, nil
	case *ast.IntegerNode:
		return n.Value, nil
	case *ast.FloatNode:
		return n.Value, nil
	case *ast.BoolNode:
		return n.Value, nil
	case *ast.NilNode:
		return nil, nil
	case *ast.UnaryNode:
		if n.Operator == "-" {
			switch inner := n.Node.(type) {
			case *ast.IntegerNode:
				return -inner.Value, nil
			case *ast.FloatNode:
				return -inner.Value, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s is not a literal", ErrUnsupported, node.String())
}

// Predicate is a compiled boolean expression evaluated against documents.
// Field names are variables; id refers to the document id.
type Predicate struct {
	src     string
	program *exprvm.Program
}

// Compile compiles src into a predicate. Unknown fields evaluate to nil.
func Compile(src string) (*Predicate, error) {
	program, err := exprlang.Compile(src, exprlang.AllowUndefinedVariables(), exprlang.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return &Predicate{src: src, program: program}, nil
}

// String returns the source expression.
func (p *Predicate) String() string { return p.src }

// Match evaluates the predicate for one document.
func (p *Predicate) Match(id string, fields domain.Fields) (bool, error) {
	env := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		env[k] = v
	}
	env[idName] = id
	out, err := exprlang.Run(p.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", p.src, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}
