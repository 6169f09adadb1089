package xacml

import "fmt"

// Logical functions (core spec A.3.5). or/and/n-of are lazy: arguments are
// evaluated one at a time and evaluation stops as soon as the outcome is
// decided, absorbing Indeterminate arguments that cannot change it.

func registerLogicalFunctions(r *FunctionRegistry) {
	boolType := PrimitiveType(DatatypeBoolean)

	r.mustRegister(newFunction(fnPrefix10+"not", boolType, []Datatype{boolType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(!argBool(args[0])), nil
		}))

	r.mustRegister(&lazyLogicalFunc{id: fnPrefix10 + "or", isOr: true})
	r.mustRegister(&lazyLogicalFunc{id: fnPrefix10 + "and", isOr: false})
	r.mustRegister(&nOfFunc{id: fnPrefix10 + "n-of"})
}

type lazyLogicalFunc struct {
	id   string
	isOr bool
}

func (f *lazyLogicalFunc) ID() string           { return f.id }
func (f *lazyLogicalFunc) ReturnType() Datatype { return PrimitiveType(DatatypeBoolean) }

func (f *lazyLogicalFunc) NewCall(args []Expression) (FunctionCall, error) {
	boolType := PrimitiveType(DatatypeBoolean)
	for i, arg := range args {
		if arg.ReturnType() != boolType {
			return nil, fmt.Errorf("function %s argument %d has type %s, expects boolean", f.id, i, arg.ReturnType())
		}
	}
	return &lazyLogicalCall{fn: f, args: args}, nil
}

type lazyLogicalCall struct {
	fn   *lazyLogicalFunc
	args []Expression
}

func (c *lazyLogicalCall) ReturnType() Datatype { return PrimitiveType(DatatypeBoolean) }

func (c *lazyLogicalCall) Evaluate(ctx *EvaluationContext) (any, error) {
	var firstErr error
	for _, arg := range c.args {
		v, err := arg.Evaluate(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if argValue(v).Bool() == c.fn.isOr {
			// or: True decides; and: False decides.
			return NewBooleanValue(c.fn.isOr), nil
		}
	}
	if firstErr != nil {
		return nil, asIndeterminate(firstErr)
	}
	return NewBooleanValue(!c.fn.isOr), nil
}

type nOfFunc struct {
	id string
}

func (f *nOfFunc) ID() string           { return f.id }
func (f *nOfFunc) ReturnType() Datatype { return PrimitiveType(DatatypeBoolean) }

func (f *nOfFunc) NewCall(args []Expression) (FunctionCall, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("function %s expects at least 1 argument", f.id)
	}
	if args[0].ReturnType() != PrimitiveType(DatatypeInteger) {
		return nil, fmt.Errorf("function %s first argument must be integer, got %s", f.id, args[0].ReturnType())
	}
	boolType := PrimitiveType(DatatypeBoolean)
	for i, arg := range args[1:] {
		if arg.ReturnType() != boolType {
			return nil, fmt.Errorf("function %s argument %d has type %s, expects boolean", f.id, i+1, arg.ReturnType())
		}
	}
	return &nOfCall{fn: f, args: args}, nil
}

type nOfCall struct {
	fn   *nOfFunc
	args []Expression
}

func (c *nOfCall) ReturnType() Datatype { return PrimitiveType(DatatypeBoolean) }

// Evaluate returns true as soon as n arguments are true and false as soon as
// even all remaining unknowns could not reach n. Indeterminate only when the
// unknowns could still tip the count.
func (c *nOfCall) Evaluate(ctx *EvaluationContext) (any, error) {
	nv, err := c.args[0].Evaluate(ctx)
	if err != nil {
		return nil, asIndeterminate(err)
	}
	n := argValue(nv).Int()
	if n <= 0 {
		return NewBooleanValue(true), nil
	}
	rest := c.args[1:]
	if n > int64(len(rest)) {
		return nil, newIndeterminate(StatusProcessingError,
			"n-of requires %d true arguments but only %d are supplied", n, len(rest))
	}
	var trues, unknowns int64
	var firstErr error
	for i, arg := range rest {
		v, evalErr := arg.Evaluate(ctx)
		if evalErr != nil {
			unknowns++
			if firstErr == nil {
				firstErr = evalErr
			}
		} else if argValue(v).Bool() {
			trues++
			if trues >= n {
				return NewBooleanValue(true), nil
			}
		}
		remaining := int64(len(rest) - i - 1)
		if trues+unknowns+remaining < n {
			return NewBooleanValue(false), nil
		}
	}
	if trues+unknowns >= n {
		return nil, asIndeterminate(firstErr)
	}
	return NewBooleanValue(false), nil
}
