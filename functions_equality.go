package xacml

import "strings"

// typePrefixes maps each primitive datatype to the XACML version prefix its
// standard functions were introduced under.
var typePrefixes = map[string]string{
	DatatypeString:            fnPrefix10,
	DatatypeBoolean:           fnPrefix10,
	DatatypeInteger:           fnPrefix10,
	DatatypeDouble:            fnPrefix10,
	DatatypeTime:              fnPrefix10,
	DatatypeDate:              fnPrefix10,
	DatatypeDateTime:          fnPrefix10,
	DatatypeDayTimeDuration:   fnPrefix30,
	DatatypeYearMonthDuration: fnPrefix30,
	DatatypeAnyURI:            fnPrefix10,
	DatatypeHexBinary:         fnPrefix10,
	DatatypeBase64Binary:      fnPrefix10,
	DatatypeX500Name:          fnPrefix10,
	DatatypeRFC822Name:        fnPrefix10,
	DatatypeIPAddress:         fnPrefix20,
	DatatypeDNSName:           fnPrefix20,
}

// Equality functions (core spec A.3.1): one per primitive datatype, by
// canonical form, except double which compares numerically so that
// NaN != NaN and 0.0 == -0.0.
func registerEqualityFunctions(r *FunctionRegistry) {
	boolType := PrimitiveType(DatatypeBoolean)
	for typeID, prefix := range typePrefixes {
		dt := PrimitiveType(typeID)
		name := prefix + shortTypeName(typeID) + "-equal"
		if typeID == DatatypeDouble {
			r.mustRegister(newFunction(name, boolType, []Datatype{dt, dt}, false,
				func(_ *EvaluationContext, args []any) (any, error) {
					return NewBooleanValue(argFloat(args[0]) == argFloat(args[1])), nil
				}))
			continue
		}
		r.mustRegister(newFunction(name, boolType, []Datatype{dt, dt}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				return NewBooleanValue(argValue(args[0]).Equal(argValue(args[1]))), nil
			}))
	}

	strType := PrimitiveType(DatatypeString)
	r.mustRegister(newFunction(fnPrefix30+"string-equal-ignore-case", boolType, []Datatype{strType, strType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(strings.EqualFold(argStr(args[0]), argStr(args[1]))), nil
		}))
}
