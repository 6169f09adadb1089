package xacml

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Expression is the evaluation contract shared by constants, designators,
// selectors, variable references and function applications. Evaluate returns
// either a *AttributeValue or a *Bag; failures are *IndeterminateError.
type Expression interface {
	ReturnType() Datatype
	Evaluate(ctx *EvaluationContext) (any, error)
	String() string
}

// Constant wraps a literal AttributeValue.
type Constant struct {
	val *AttributeValue
}

func NewConstant(v *AttributeValue) *Constant { return &Constant{val: v} }

func (c *Constant) ReturnType() Datatype { return c.val.Datatype() }

func (c *Constant) Evaluate(_ *EvaluationContext) (any, error) { return c.val, nil }

func (c *Constant) String() string { return c.val.String() }

// AttributeDesignator looks up a named attribute bag in the evaluation
// context (request attributes, then attribute providers).
type AttributeDesignator struct {
	fqn           AttributeFqn
	elementType   Datatype
	mustBePresent bool
}

func NewAttributeDesignator(fqn AttributeFqn, elementType Datatype, mustBePresent bool) *AttributeDesignator {
	return &AttributeDesignator{fqn: fqn, elementType: elementType, mustBePresent: mustBePresent}
}

func (d *AttributeDesignator) Fqn() AttributeFqn { return d.fqn }

func (d *AttributeDesignator) ReturnType() Datatype { return BagType(d.elementType.ID) }

func (d *AttributeDesignator) Evaluate(ctx *EvaluationContext) (any, error) {
	bag, err := ctx.ResolveDesignator(d.fqn, d.elementType, d.mustBePresent)
	if err != nil {
		return nil, err
	}
	return bag, nil
}

func (d *AttributeDesignator) String() string {
	return fmt.Sprintf("designator(%s:%s)", d.fqn, d.elementType)
}

// AttributeSelector evaluates an XPath against the request Content of a
// category and parses the selected nodes into values of the declared type.
type AttributeSelector struct {
	category          string
	path              string
	compiled          *xpath.Expr
	elementType       Datatype
	mustBePresent     bool
	contextSelectorID string
}

func NewAttributeSelector(category, path string, elementType Datatype, mustBePresent bool, contextSelectorID string) (*AttributeSelector, error) {
	expr, err := xpath.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid AttributeSelector path %q: %w", path, err)
	}
	return &AttributeSelector{
		category:          category,
		path:              path,
		compiled:          expr,
		elementType:       elementType,
		mustBePresent:     mustBePresent,
		contextSelectorID: contextSelectorID,
	}, nil
}

func (s *AttributeSelector) ReturnType() Datatype { return BagType(s.elementType.ID) }

func (s *AttributeSelector) Evaluate(ctx *EvaluationContext) (any, error) {
	root := ctx.Content(s.category)
	if root != nil && s.contextSelectorID != "" {
		base, err := s.resolveContextSelector(ctx, root)
		if err != nil {
			return nil, err
		}
		root = base
	}
	if root == nil {
		if s.mustBePresent {
			return nil, newIndeterminate(StatusMissingAttribute,
				"no Content for category %q required by AttributeSelector %q", s.category, s.path)
		}
		return NewEmptyBag(s.elementType), nil
	}
	nodes := xmlquery.QuerySelectorAll(root, s.compiled)
	if len(nodes) == 0 {
		if s.mustBePresent {
			return nil, newIndeterminate(StatusMissingAttribute,
				"AttributeSelector %q matched nothing in category %q", s.path, s.category)
		}
		return NewEmptyBag(s.elementType), nil
	}
	vals := make([]*AttributeValue, 0, len(nodes))
	for _, n := range nodes {
		v, err := ParseValue(s.elementType.ID, strings.TrimSpace(n.InnerText()))
		if err != nil {
			return nil, wrapIndeterminate(err, StatusProcessingError,
				"AttributeSelector %q: node value does not parse as %s", s.path, s.elementType)
		}
		vals = append(vals, v)
	}
	return NewBag(s.elementType, vals...), nil
}

// resolveContextSelector narrows the XPath base node using the xpath
// expression carried by the ContextSelectorId attribute.
func (s *AttributeSelector) resolveContextSelector(ctx *EvaluationContext, root *xmlquery.Node) (*xmlquery.Node, error) {
	fqn := AttributeFqn{Category: s.category, ID: s.contextSelectorID}
	bag, err := ctx.ResolveDesignator(fqn, PrimitiveType(DatatypeString), true)
	if err != nil {
		return nil, err
	}
	sel, err := bag.Single()
	if err != nil {
		return nil, err
	}
	node, qerr := xmlquery.Query(root, sel.Str())
	if qerr != nil {
		return nil, newIndeterminate(StatusSyntaxError, "invalid context selector xpath %q", sel.Str())
	}
	return node, nil
}

func (s *AttributeSelector) String() string {
	return fmt.Sprintf("selector(%s:%s:%s)", s.category, s.path, s.elementType)
}

// VariableDefinition names a reusable expression inside a policy.
type VariableDefinition struct {
	ID         string
	Expression Expression
}

// VariableReference resolves a variable definition through the context's
// per-evaluation memo.
type VariableReference struct {
	def *VariableDefinition
}

func NewVariableReference(def *VariableDefinition) *VariableReference {
	return &VariableReference{def: def}
}

func (r *VariableReference) ReturnType() Datatype { return r.def.Expression.ReturnType() }

func (r *VariableReference) Evaluate(ctx *EvaluationContext) (any, error) {
	return ctx.evaluateVariable(r.def)
}

func (r *VariableReference) String() string { return "var(" + r.def.ID + ")" }

// Apply is a function application. Arity and argument datatypes are checked
// at construction; evaluation delegates to the function call.
type Apply struct {
	fn   Function
	call FunctionCall
}

func NewApply(fn Function, args ...Expression) (*Apply, error) {
	call, err := fn.NewCall(args)
	if err != nil {
		return nil, err
	}
	return &Apply{fn: fn, call: call}, nil
}

func (a *Apply) ReturnType() Datatype { return a.call.ReturnType() }

func (a *Apply) Evaluate(ctx *EvaluationContext) (any, error) { return a.call.Evaluate(ctx) }

func (a *Apply) String() string { return "apply(" + a.fn.ID() + ")" }

// functionExpression passes a function as an argument to a higher-order
// function.
type functionExpression struct {
	fn Function
}

// NewFunctionExpression wraps a function for use as a higher-order argument.
func NewFunctionExpression(fn Function) Expression { return &functionExpression{fn: fn} }

func (f *functionExpression) ReturnType() Datatype { return PrimitiveType(datatypeFunction) }

func (f *functionExpression) Evaluate(_ *EvaluationContext) (any, error) {
	return nil, newIndeterminate(StatusProcessingError,
		"function %q used outside a higher-order argument position", f.fn.ID())
}

func (f *functionExpression) String() string { return "function(" + f.fn.ID() + ")" }
