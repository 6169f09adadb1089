package xacml

import "math"

// Arithmetic and numeric comparison functions (core spec A.3.2, A.3.6).
func registerNumericFunctions(r *FunctionRegistry) {
	intType := PrimitiveType(DatatypeInteger)
	dblType := PrimitiveType(DatatypeDouble)
	boolType := PrimitiveType(DatatypeBoolean)

	r.mustRegister(newFunction(fnPrefix10+"integer-add", intType, []Datatype{intType, intType}, true,
		func(_ *EvaluationContext, args []any) (any, error) {
			var sum int64
			for _, a := range args {
				sum += argInt(a)
			}
			return NewIntegerValue(sum), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"integer-subtract", intType, []Datatype{intType, intType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewIntegerValue(argInt(args[0]) - argInt(args[1])), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"integer-multiply", intType, []Datatype{intType, intType}, true,
		func(_ *EvaluationContext, args []any) (any, error) {
			prod := int64(1)
			for _, a := range args {
				prod *= argInt(a)
			}
			return NewIntegerValue(prod), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"integer-divide", intType, []Datatype{intType, intType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			d := argInt(args[1])
			if d == 0 {
				return nil, newIndeterminate(StatusProcessingError, "integer-divide: division by zero")
			}
			return NewIntegerValue(argInt(args[0]) / d), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"integer-mod", intType, []Datatype{intType, intType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			d := argInt(args[1])
			if d == 0 {
				return nil, newIndeterminate(StatusProcessingError, "integer-mod: division by zero")
			}
			return NewIntegerValue(argInt(args[0]) % d), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"integer-abs", intType, []Datatype{intType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			i := argInt(args[0])
			if i < 0 {
				i = -i
			}
			return NewIntegerValue(i), nil
		}))

	r.mustRegister(newFunction(fnPrefix10+"double-add", dblType, []Datatype{dblType, dblType}, true,
		func(_ *EvaluationContext, args []any) (any, error) {
			var sum float64
			for _, a := range args {
				sum += argFloat(a)
			}
			return NewDoubleValue(sum), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"double-subtract", dblType, []Datatype{dblType, dblType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewDoubleValue(argFloat(args[0]) - argFloat(args[1])), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"double-multiply", dblType, []Datatype{dblType, dblType}, true,
		func(_ *EvaluationContext, args []any) (any, error) {
			prod := 1.0
			for _, a := range args {
				prod *= argFloat(a)
			}
			return NewDoubleValue(prod), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"double-divide", dblType, []Datatype{dblType, dblType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			d := argFloat(args[1])
			if d == 0 {
				return nil, newIndeterminate(StatusProcessingError, "double-divide: division by zero")
			}
			return NewDoubleValue(argFloat(args[0]) / d), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"double-abs", dblType, []Datatype{dblType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewDoubleValue(math.Abs(argFloat(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"round", dblType, []Datatype{dblType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewDoubleValue(math.RoundToEven(argFloat(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"floor", dblType, []Datatype{dblType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewDoubleValue(math.Floor(argFloat(args[0]))), nil
		}))

	intCmp := func(name string, test func(a, b int64) bool) {
		r.mustRegister(newFunction(fnPrefix10+"integer-"+name, boolType, []Datatype{intType, intType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				return NewBooleanValue(test(argInt(args[0]), argInt(args[1]))), nil
			}))
	}
	intCmp("greater-than", func(a, b int64) bool { return a > b })
	intCmp("greater-than-or-equal", func(a, b int64) bool { return a >= b })
	intCmp("less-than", func(a, b int64) bool { return a < b })
	intCmp("less-than-or-equal", func(a, b int64) bool { return a <= b })

	dblCmp := func(name string, test func(a, b float64) bool) {
		r.mustRegister(newFunction(fnPrefix10+"double-"+name, boolType, []Datatype{dblType, dblType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				return NewBooleanValue(test(argFloat(args[0]), argFloat(args[1]))), nil
			}))
	}
	dblCmp("greater-than", func(a, b float64) bool { return a > b })
	dblCmp("greater-than-or-equal", func(a, b float64) bool { return a >= b })
	dblCmp("less-than", func(a, b float64) bool { return a < b })
	dblCmp("less-than-or-equal", func(a, b float64) bool { return a <= b })

	strType := PrimitiveType(DatatypeString)
	strCmp := func(name string, test func(a, b string) bool) {
		r.mustRegister(newFunction(fnPrefix10+"string-"+name, boolType, []Datatype{strType, strType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				return NewBooleanValue(test(argStr(args[0]), argStr(args[1]))), nil
			}))
	}
	strCmp("greater-than", func(a, b string) bool { return a > b })
	strCmp("greater-than-or-equal", func(a, b string) bool { return a >= b })
	strCmp("less-than", func(a, b string) bool { return a < b })
	strCmp("less-than-or-equal", func(a, b string) bool { return a <= b })
}
