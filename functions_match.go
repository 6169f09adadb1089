package xacml

import (
	"regexp"
	"sync"

	"github.com/oarkflow/xacml/utils"
)

// Regular-expression and special matching functions (core spec A.3.13,
// A.3.14). Compiled patterns are memoized: MatchId functions run once per
// bag element and policies reuse the same literal pattern across requests.
var regexpCache sync.Map // string -> *regexp.Regexp

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexpCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, newIndeterminate(StatusProcessingError, "invalid regular expression %q", pattern)
	}
	regexpCache.Store(pattern, re)
	return re, nil
}

func registerMatchFunctions(r *FunctionRegistry) {
	boolType := PrimitiveType(DatatypeBoolean)
	strType := PrimitiveType(DatatypeString)

	regexpMatch := func(id string, operandType Datatype) {
		r.mustRegister(newFunction(id, boolType, []Datatype{strType, operandType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				re, err := compilePattern(argStr(args[0]))
				if err != nil {
					return nil, err
				}
				return NewBooleanValue(re.MatchString(argValue(args[1]).Lexical())), nil
			}))
	}
	regexpMatch(fnPrefix10+"string-regexp-match", strType)
	regexpMatch(fnPrefix20+"anyURI-regexp-match", PrimitiveType(DatatypeAnyURI))
	regexpMatch(fnPrefix20+"ipAddress-regexp-match", PrimitiveType(DatatypeIPAddress))
	regexpMatch(fnPrefix20+"dnsName-regexp-match", PrimitiveType(DatatypeDNSName))
	regexpMatch(fnPrefix20+"rfc822Name-regexp-match", PrimitiveType(DatatypeRFC822Name))
	regexpMatch(fnPrefix20+"x500Name-regexp-match", PrimitiveType(DatatypeX500Name))

	r.mustRegister(newFunction(fnPrefix10+"rfc822Name-match", boolType,
		[]Datatype{strType, PrimitiveType(DatatypeRFC822Name)}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(utils.MatchRFC822Name(argStr(args[0]), argValue(args[1]).Lexical())), nil
		}))
	r.mustRegister(newFunction(fnPrefix10+"x500Name-match", boolType,
		[]Datatype{PrimitiveType(DatatypeX500Name), PrimitiveType(DatatypeX500Name)}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			return NewBooleanValue(utils.MatchX500Name(argValue(args[0]).Lexical(), argValue(args[1]).Lexical())), nil
		}))
}
