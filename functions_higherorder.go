package xacml

import "fmt"

// Higher-order bag functions (core spec A.3.12). Each takes a first-order
// sub-function reference and applies it across bag elements with the any/all
// short-circuit and Indeterminate-absorption rules of A.3.15.

type hoKind uint8

const (
	hoAnyOf hoKind = iota
	hoAllOf
	hoAnyOfAny
	hoAllOfAny
	hoAnyOfAll
	hoAllOfAll
	hoMap
)

func registerHigherOrderFunctions(r *FunctionRegistry) {
	r.mustRegister(&higherOrderFunc{id: fnPrefix30 + "any-of", kind: hoAnyOf})
	r.mustRegister(&higherOrderFunc{id: fnPrefix30 + "all-of", kind: hoAllOf})
	r.mustRegister(&higherOrderFunc{id: fnPrefix30 + "any-of-any", kind: hoAnyOfAny})
	r.mustRegister(&higherOrderFunc{id: fnPrefix30 + "all-of-any", kind: hoAllOfAny})
	r.mustRegister(&higherOrderFunc{id: fnPrefix30 + "any-of-all", kind: hoAnyOfAll})
	r.mustRegister(&higherOrderFunc{id: fnPrefix30 + "all-of-all", kind: hoAllOfAll})
	r.mustRegister(&higherOrderFunc{id: fnPrefix30 + "map", kind: hoMap})
}

type higherOrderFunc struct {
	id   string
	kind hoKind
}

func (f *higherOrderFunc) ID() string { return f.id }

func (f *higherOrderFunc) ReturnType() Datatype {
	if f.kind == hoMap {
		// The concrete element type comes from the sub-function at call
		// construction time.
		return Datatype{IsBag: true}
	}
	return PrimitiveType(DatatypeBoolean)
}

func (f *higherOrderFunc) NewCall(args []Expression) (FunctionCall, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("function %s expects a sub-function and at least one argument", f.id)
	}
	fnExpr, ok := args[0].(*functionExpression)
	if !ok {
		return nil, fmt.Errorf("function %s first argument must be a function reference", f.id)
	}
	sub, ok := fnExpr.fn.(FirstOrderFunction)
	if !ok {
		return nil, fmt.Errorf("function %s sub-function %s must be first-order", f.id, fnExpr.fn.ID())
	}
	rest := args[1:]

	bagCount := 0
	for _, arg := range rest {
		if arg.ReturnType().IsBag {
			bagCount++
		}
	}
	switch f.kind {
	case hoAnyOf, hoAllOf, hoMap:
		if bagCount != 1 {
			return nil, fmt.Errorf("function %s expects exactly one bag argument, got %d", f.id, bagCount)
		}
	case hoAllOfAny, hoAnyOfAll, hoAllOfAll:
		if len(rest) != 2 || bagCount != 2 {
			return nil, fmt.Errorf("function %s expects exactly two bag arguments", f.id)
		}
	case hoAnyOfAny:
		if bagCount == 0 {
			return nil, fmt.Errorf("function %s expects at least one bag argument", f.id)
		}
	}
	if err := checkSubFunction(f.id, f.kind, sub, rest); err != nil {
		return nil, err
	}

	ret := PrimitiveType(DatatypeBoolean)
	if f.kind == hoMap {
		ret = BagType(sub.ReturnType().ID)
	}
	return &higherOrderCall{fn: f, sub: sub, args: rest, ret: ret}, nil
}

// checkSubFunction verifies the sub-function's signature against the
// element types the higher-order loop will feed it.
func checkSubFunction(hoID string, kind hoKind, sub FirstOrderFunction, args []Expression) error {
	params := sub.Params()
	if !sub.Variadic() && len(params) != len(args) {
		return fmt.Errorf("function %s sub-function %s expects %d arguments, got %d",
			hoID, sub.ID(), len(params), len(args))
	}
	for i, arg := range args {
		want := params[min(i, len(params)-1)]
		got := arg.ReturnType()
		if got.IsBag {
			got = PrimitiveType(got.Element)
		}
		if got != want {
			return fmt.Errorf("function %s sub-function %s argument %d has element type %s, expects %s",
				hoID, sub.ID(), i, got, want)
		}
	}
	if kind != hoMap && sub.ReturnType() != PrimitiveType(DatatypeBoolean) {
		return fmt.Errorf("function %s sub-function %s must return boolean", hoID, sub.ID())
	}
	return nil
}

type higherOrderCall struct {
	fn   *higherOrderFunc
	sub  FirstOrderFunction
	args []Expression
	ret  Datatype
}

func (c *higherOrderCall) ReturnType() Datatype { return c.ret }

func (c *higherOrderCall) Evaluate(ctx *EvaluationContext) (any, error) {
	vals := make([]any, len(c.args))
	for i, arg := range c.args {
		v, err := arg.Evaluate(ctx)
		if err != nil {
			return nil, wrapIndeterminate(err, StatusProcessingError,
				"function %s: indeterminate argument %d", c.fn.id, i+1)
		}
		vals[i] = v
	}
	switch c.fn.kind {
	case hoAnyOf, hoAnyOfAny:
		return c.quantifyCartesian(ctx, vals, true)
	case hoAllOf:
		return c.quantifyCartesian(ctx, vals, false)
	case hoAllOfAny:
		return c.quantifyPair(ctx, vals, false, true)
	case hoAnyOfAll:
		return c.quantifyPair(ctx, vals, true, false)
	case hoAllOfAll:
		return c.quantifyPair(ctx, vals, false, false)
	default:
		return c.mapBag(ctx, vals)
	}
}

// quantifyCartesian runs the sub-function over the cartesian product of all
// bag arguments. With wantAny it short-circuits on the first true; otherwise
// on the first false.
func (c *higherOrderCall) quantifyCartesian(ctx *EvaluationContext, vals []any, wantAny bool) (any, error) {
	bagPos := make([]int, 0, len(vals))
	for i, v := range vals {
		if _, isBag := v.(*Bag); isBag {
			bagPos = append(bagPos, i)
		}
	}
	call := make([]any, len(vals))
	copy(call, vals)

	var firstErr error
	decided := false
	var walk func(depth int) bool
	walk = func(depth int) bool {
		if depth == len(bagPos) {
			res, err := c.sub.Invoke(ctx, call)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return false
			}
			if argValue(res).Bool() == wantAny {
				decided = true
				return true
			}
			return false
		}
		pos := bagPos[depth]
		bag := vals[pos].(*Bag)
		for _, elem := range bag.Values() {
			call[pos] = elem
			if walk(depth + 1) {
				return true
			}
		}
		return false
	}
	if walk(0) && decided {
		return NewBooleanValue(wantAny), nil
	}
	if firstErr != nil {
		return nil, asIndeterminate(firstErr)
	}
	return NewBooleanValue(!wantAny), nil
}

// quantifyPair implements the two-bag forms: outerAny/innerAny select the
// quantifier for each bag (true = exists, false = for-all).
func (c *higherOrderCall) quantifyPair(ctx *EvaluationContext, vals []any, outerAny, innerAny bool) (any, error) {
	outer := vals[0].(*Bag)
	inner := vals[1].(*Bag)
	quantInner := func(x *AttributeValue) (bool, error) {
		var firstErr error
		for _, y := range inner.Values() {
			res, err := c.sub.Invoke(ctx, []any{x, y})
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if argValue(res).Bool() == innerAny {
				return innerAny, nil
			}
		}
		if firstErr != nil {
			return false, firstErr
		}
		return !innerAny, nil
	}
	// An inner error only taints its own outer element: a later element can
	// still decide the whole call (A.3.15). Indeterminate surfaces only when
	// the loop finishes undecided.
	var outerErr error
	for _, x := range outer.Values() {
		ok, err := quantInner(x)
		if err != nil {
			if outerErr == nil {
				outerErr = err
			}
			continue
		}
		if ok == outerAny {
			return NewBooleanValue(outerAny), nil
		}
	}
	if outerErr != nil {
		return nil, asIndeterminate(outerErr)
	}
	return NewBooleanValue(!outerAny), nil
}

// mapBag applies the sub-function to each element of the single bag
// argument, collecting results into a bag of the sub-function's return type.
func (c *higherOrderCall) mapBag(ctx *EvaluationContext, vals []any) (any, error) {
	pos := -1
	for i, v := range vals {
		if _, isBag := v.(*Bag); isBag {
			pos = i
			break
		}
	}
	bag := vals[pos].(*Bag)
	call := make([]any, len(vals))
	copy(call, vals)
	out := make([]*AttributeValue, 0, bag.Size())
	for _, elem := range bag.Values() {
		call[pos] = elem
		res, err := c.sub.Invoke(ctx, call)
		if err != nil {
			return nil, asIndeterminate(err)
		}
		out = append(out, argValue(res))
	}
	return NewBag(PrimitiveType(c.ret.Element), out...), nil
}
