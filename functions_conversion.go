package xacml

import "math"

// Type conversion functions: the 1.0 numeric pair plus the 3.0
// string-from-X / X-from-string family (core spec A.3.9).
func registerConversionFunctions(r *FunctionRegistry) {
	intType := PrimitiveType(DatatypeInteger)
	dblType := PrimitiveType(DatatypeDouble)
	strType := PrimitiveType(DatatypeString)

	r.mustRegister(newFunction(fnPrefix10+"double-to-integer", intType, []Datatype{dblType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			f := argFloat(args[0])
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, newIndeterminate(StatusProcessingError, "double-to-integer: %v has no integer form", f)
			}
			return NewIntegerValue(int64(math.Trunc(f))), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"integer-to-double", dblType, []Datatype{intType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewDoubleValue(float64(argInt(args[0]))), nil
		}))

	for _, typeID := range []string{
		DatatypeBoolean, DatatypeInteger, DatatypeDouble,
		DatatypeTime, DatatypeDate, DatatypeDateTime,
		DatatypeDayTimeDuration, DatatypeYearMonthDuration,
		DatatypeAnyURI, DatatypeX500Name, DatatypeRFC822Name,
		DatatypeIPAddress, DatatypeDNSName,
	} {
		dt := PrimitiveType(typeID)
		name := shortTypeName(typeID)

		r.mustRegister(newFunction(fnPrefix30+"string-from-"+name, strType, []Datatype{dt}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				return NewStringValue(argValue(args[0]).Lexical()), nil
			}))

		id := typeID // captured per iteration
		r.mustRegister(newFunction(fnPrefix30+name+"-from-string", dt, []Datatype{strType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				v, err := ParseValue(id, argStr(args[0]))
				if err != nil {
					return nil, wrapIndeterminate(err, StatusProcessingError, "conversion from string failed")
				}
				return v, nil
			}))
	}
}
