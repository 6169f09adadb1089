package xacml

import "fmt"

// Standard XACML function identifier prefixes.
const (
	fnPrefix10 = "urn:oasis:names:tc:xacml:1.0:function:"
	fnPrefix20 = "urn:oasis:names:tc:xacml:2.0:function:"
	fnPrefix30 = "urn:oasis:names:tc:xacml:3.0:function:"
)

// Function describes one entry of the function library. NewCall validates
// arity and argument datatypes at policy-parse time so evaluation never
// re-checks them.
type Function interface {
	ID() string
	ReturnType() Datatype
	NewCall(args []Expression) (FunctionCall, error)
}

// FunctionCall is a validated application of a function to expressions.
type FunctionCall interface {
	ReturnType() Datatype
	Evaluate(ctx *EvaluationContext) (any, error)
}

// FirstOrderFunction is a function whose arguments are all evaluated before
// invocation. Higher-order functions call Invoke directly with per-iteration
// values.
type FirstOrderFunction interface {
	Function
	Params() []Datatype
	Variadic() bool
	Invoke(ctx *EvaluationContext, args []any) (any, error)
}

// firstOrderFunc is the generic eager implementation. The impl receives
// evaluated arguments: *AttributeValue for primitive parameters and *Bag for
// bag parameters, in declaration order.
type firstOrderFunc struct {
	id       string
	ret      Datatype
	params   []Datatype
	variadic bool
	impl     func(ctx *EvaluationContext, args []any) (any, error)
}

func newFunction(id string, ret Datatype, params []Datatype, variadic bool,
	impl func(ctx *EvaluationContext, args []any) (any, error)) *firstOrderFunc {
	return &firstOrderFunc{id: id, ret: ret, params: params, variadic: variadic, impl: impl}
}

func (f *firstOrderFunc) ID() string           { return f.id }
func (f *firstOrderFunc) ReturnType() Datatype { return f.ret }
func (f *firstOrderFunc) Params() []Datatype   { return f.params }
func (f *firstOrderFunc) Variadic() bool       { return f.variadic }

func (f *firstOrderFunc) Invoke(ctx *EvaluationContext, args []any) (any, error) {
	return f.impl(ctx, args)
}

func (f *firstOrderFunc) NewCall(args []Expression) (FunctionCall, error) {
	if err := checkArgTypes(f.id, f.params, f.variadic, args); err != nil {
		return nil, err
	}
	return &firstOrderCall{fn: f, args: args}, nil
}

// checkArgTypes verifies arity and return-type agreement between argument
// expressions and declared parameters, allowing a repeating variadic tail.
func checkArgTypes(funcID string, params []Datatype, variadic bool, args []Expression) error {
	if variadic {
		if len(args) < len(params) {
			return fmt.Errorf("function %s expects at least %d arguments, got %d", funcID, len(params), len(args))
		}
	} else if len(args) != len(params) {
		return fmt.Errorf("function %s expects %d arguments, got %d", funcID, len(params), len(args))
	}
	for i, arg := range args {
		want := params[min(i, len(params)-1)]
		got := arg.ReturnType()
		if got != want {
			return fmt.Errorf("function %s argument %d has type %s, expects %s", funcID, i, got, want)
		}
	}
	return nil
}

// firstOrderCall evaluates every argument eagerly; the first Indeterminate
// aborts the call.
type firstOrderCall struct {
	fn   *firstOrderFunc
	args []Expression
}

func (c *firstOrderCall) ReturnType() Datatype { return c.fn.ret }

func (c *firstOrderCall) Evaluate(ctx *EvaluationContext) (any, error) {
	vals := make([]any, len(c.args))
	for i, arg := range c.args {
		v, err := arg.Evaluate(ctx)
		if err != nil {
			return nil, wrapIndeterminate(err, StatusProcessingError,
				"function %s: indeterminate argument %d", c.fn.id, i)
		}
		vals[i] = v
	}
	return c.fn.impl(ctx, vals)
}

// Typed argument accessors shared by the function implementations. The call
// layer guarantees datatypes, so these only narrow the dynamic type.

func argValue(a any) *AttributeValue { v, _ := a.(*AttributeValue); return v }
func argBag(a any) *Bag              { b, _ := a.(*Bag); return b }

func argBool(a any) bool     { return argValue(a).Bool() }
func argInt(a any) int64     { return argValue(a).Int() }
func argFloat(a any) float64 { return argValue(a).Float() }
func argStr(a any) string    { return argValue(a).Str() }

// FunctionRegistry maps URIs to functions. The standard library is installed
// by StandardFunctionRegistry; extension functions may be added before the
// registry is frozen into an engine.
type FunctionRegistry struct {
	fns map[string]Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{fns: make(map[string]Function, 256)}
}

// StandardFunctionRegistry builds a registry carrying the XACML 3.0 standard
// function library.
func StandardFunctionRegistry() *FunctionRegistry {
	r := NewFunctionRegistry()
	registerLogicalFunctions(r)
	registerEqualityFunctions(r)
	registerNumericFunctions(r)
	registerStringFunctions(r)
	registerConversionFunctions(r)
	registerTemporalFunctions(r)
	registerBagFunctions(r)
	registerSetFunctions(r)
	registerMatchFunctions(r)
	registerHigherOrderFunctions(r)
	return r
}

func (r *FunctionRegistry) Register(f Function) error {
	if _, exists := r.fns[f.ID()]; exists {
		return fmt.Errorf("function already registered: %s", f.ID())
	}
	r.fns[f.ID()] = f
	return nil
}

func (r *FunctionRegistry) mustRegister(f Function) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

func (r *FunctionRegistry) Lookup(id string) (Function, bool) {
	f, ok := r.fns[id]
	return f, ok
}

// MustLookup is a convenience for programmatic policy construction.
func (r *FunctionRegistry) MustLookup(id string) Function {
	f, ok := r.fns[id]
	if !ok {
		panic(fmt.Sprintf("unknown function %q", id))
	}
	return f
}

func (r *FunctionRegistry) Size() int { return len(r.fns) }
