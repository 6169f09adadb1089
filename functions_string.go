package xacml

import (
	"strings"

	"github.com/oarkflow/xacml/utils"
)

// String functions (core spec A.3.9).
func registerStringFunctions(r *FunctionRegistry) {
	strType := PrimitiveType(DatatypeString)
	boolType := PrimitiveType(DatatypeBoolean)
	intType := PrimitiveType(DatatypeInteger)
	uriType := PrimitiveType(DatatypeAnyURI)

	r.mustRegister(newFunction(fnPrefix10+"string-normalize-space", strType, []Datatype{strType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewStringValue(utils.NormalizeSpace(argStr(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"string-normalize-to-lower-case", strType, []Datatype{strType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewStringValue(strings.ToLower(argStr(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix20+"string-concatenate", strType, []Datatype{strType, strType}, true,
		func(_ *EvaluationContext, args []any) (any, error) {
			var sb strings.Builder
			for _, a := range args {
				sb.WriteString(argStr(a))
			}
			return NewStringValue(sb.String()), nil
		}))

	// The 3.0 containment functions take the needle first (A.3.9).
	r.mustRegister(newFunction(fnPrefix30+"string-starts-with", boolType, []Datatype{strType, strType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(strings.HasPrefix(argStr(args[1]), argStr(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix30+"string-ends-with", boolType, []Datatype{strType, strType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(strings.HasSuffix(argStr(args[1]), argStr(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix30+"string-contains", boolType, []Datatype{strType, strType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(strings.Contains(argStr(args[1]), argStr(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix30+"anyURI-starts-with", boolType, []Datatype{strType, uriType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(strings.HasPrefix(argStr(args[1]), argStr(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix30+"anyURI-ends-with", boolType, []Datatype{strType, uriType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(strings.HasSuffix(argStr(args[1]), argStr(args[0]))), nil
		}))
	r.mustRegister(newFunction(fnPrefix30+"anyURI-contains", boolType, []Datatype{strType, uriType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(strings.Contains(argStr(args[1]), argStr(args[0]))), nil
		}))

	substring := func(s string, begin, end int64) (string, error) {
		runes := []rune(s)
		n := int64(len(runes))
		if end == -1 {
			end = n
		}
		if begin < 0 || begin > n || end < begin || end > n {
			return "", newIndeterminate(StatusProcessingError,
				"substring range [%d,%d) out of bounds for length %d", begin, end, n)
		}
		return string(runes[begin:end]), nil
	}
	r.mustRegister(newFunction(fnPrefix30+"string-substring", strType, []Datatype{strType, intType, intType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			s, err := substring(argStr(args[0]), argInt(args[1]), argInt(args[2]))
			if err != nil {
				return nil, err
			}
			return NewStringValue(s), nil
		}))
	r.mustRegister(newFunction(fnPrefix30+"anyURI-substring", strType, []Datatype{uriType, intType, intType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			s, err := substring(argStr(args[0]), argInt(args[1]), argInt(args[2]))
			if err != nil {
				return nil, err
			}
			return NewStringValue(s), nil
		}))
}
