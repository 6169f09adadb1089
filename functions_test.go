package xacml

import (
	"context"
	"testing"
	"time"
)

var testFunctions = StandardFunctionRegistry()

func testCtx() *EvaluationContext {
	return NewEvaluationContext(context.Background(), nil, nil)
}

func mustApply(t *testing.T, funcID string, args ...Expression) Expression {
	t.Helper()
	fn, ok := testFunctions.Lookup(funcID)
	if !ok {
		t.Fatalf("unknown function %q", funcID)
	}
	a, err := NewApply(fn, args...)
	if err != nil {
		t.Fatalf("apply %s: %v", funcID, err)
	}
	return a
}

func evalBool(t *testing.T, e Expression) bool {
	t.Helper()
	v, err := e.Evaluate(testCtx())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return argValue(v).Bool()
}

func str(s string) Expression  { return NewConstant(NewStringValue(s)) }
func num(i int64) Expression   { return NewConstant(NewIntegerValue(i)) }
func boolE(b bool) Expression  { return NewConstant(NewBooleanValue(b)) }
func dbl(f float64) Expression { return NewConstant(NewDoubleValue(f)) }

// bottom is a designator that always fails with missing-attribute: the
// Indeterminate argument of the short-circuit tests.
func bottom() Expression {
	return NewAttributeDesignator(
		AttributeFqn{Category: CategorySubject, ID: "urn:example:absent"},
		PrimitiveType(DatatypeBoolean), true)
}

func bottomBool() Expression {
	e := mustRawApply("urn:oasis:names:tc:xacml:1.0:function:boolean-one-and-only", bottom())
	return e
}

func mustRawApply(funcID string, args ...Expression) Expression {
	fn, ok := testFunctions.Lookup(funcID)
	if !ok {
		panic("unknown function " + funcID)
	}
	a, err := NewApply(fn, args...)
	if err != nil {
		panic(err)
	}
	return a
}

func TestStringNormalizeFunctions(t *testing.T) {
	v, err := mustApply(t, fnPrefix10+"string-normalize-space", str("   test   ")).Evaluate(testCtx())
	if err != nil {
		t.Fatalf("normalize-space: %v", err)
	}
	if got := argValue(v).Str(); got != "test" {
		t.Fatalf("normalize-space = %q, want %q", got, "test")
	}

	v, err = mustApply(t, fnPrefix10+"string-normalize-to-lower-case", str("TeST")).Evaluate(testCtx())
	if err != nil {
		t.Fatalf("normalize-to-lower-case: %v", err)
	}
	if got := argValue(v).Str(); got != "test" {
		t.Fatalf("normalize-to-lower-case = %q, want %q", got, "test")
	}
}

func TestLogicalShortCircuit(t *testing.T) {
	// or(True, bottom) = True even though bottom is Indeterminate.
	if !evalBool(t, mustApply(t, fnPrefix10+"or", boolE(true), bottomBool())) {
		t.Fatalf("or(true, bottom) must be true")
	}
	// and(False, bottom) = False.
	if evalBool(t, mustApply(t, fnPrefix10+"and", boolE(false), bottomBool())) {
		t.Fatalf("and(false, bottom) must be false")
	}
	// or(false, bottom) is Indeterminate.
	if _, err := mustApply(t, fnPrefix10+"or", boolE(false), bottomBool()).Evaluate(testCtx()); err == nil {
		t.Fatalf("or(false, bottom) must be Indeterminate")
	}
	// Empty or is false, empty and is true.
	if evalBool(t, mustApply(t, fnPrefix10+"or")) {
		t.Fatalf("or() must be false")
	}
	if !evalBool(t, mustApply(t, fnPrefix10+"and")) {
		t.Fatalf("and() must be true")
	}
}

func TestNOf(t *testing.T) {
	// Two trues reach n=2 regardless of the trailing bottom.
	if !evalBool(t, mustApply(t, fnPrefix10+"n-of", num(2), boolE(true), boolE(true), bottomBool())) {
		t.Fatalf("n-of must short-circuit on reaching n trues")
	}
	// Remaining args cannot reach n: false without touching bottom.
	if evalBool(t, mustApply(t, fnPrefix10+"n-of", num(3), boolE(false), boolE(false), boolE(true))) {
		t.Fatalf("n-of must be false when n is unreachable")
	}
	// Unknown could tip the count: Indeterminate.
	if _, err := mustApply(t, fnPrefix10+"n-of", num(2), boolE(true), boolE(false), bottomBool()).Evaluate(testCtx()); err == nil {
		t.Fatalf("n-of must be Indeterminate when unknowns could decide")
	}
	// n greater than argument count is a processing error.
	if _, err := mustApply(t, fnPrefix10+"n-of", num(3), boolE(true)).Evaluate(testCtx()); err == nil {
		t.Fatalf("n-of with too few arguments must fail")
	}
}

func TestNumericFunctions(t *testing.T) {
	v, err := mustApply(t, fnPrefix10+"integer-add", num(1), num(2), num(3)).Evaluate(testCtx())
	if err != nil {
		t.Fatalf("integer-add: %v", err)
	}
	if argValue(v).Int() != 6 {
		t.Fatalf("integer-add = %d", argValue(v).Int())
	}
	if _, err := mustApply(t, fnPrefix10+"integer-divide", num(1), num(0)).Evaluate(testCtx()); err == nil {
		t.Fatalf("division by zero must be Indeterminate")
	}
	if !evalBool(t, mustApply(t, fnPrefix10+"integer-greater-than-or-equal", num(5), num(5))) {
		t.Fatalf("5 >= 5")
	}
	v, err = mustApply(t, fnPrefix10+"floor", dbl(2.9)).Evaluate(testCtx())
	if err != nil || argValue(v).Float() != 2 {
		t.Fatalf("floor(2.9) = %v, %v", v, err)
	}
}

func TestArityAndTypeCheckingAtConstruction(t *testing.T) {
	fn := testFunctions.MustLookup(fnPrefix10 + "integer-add")
	if _, err := fn.NewCall([]Expression{num(1)}); err == nil {
		t.Fatalf("integer-add with one argument must be rejected")
	}
	if _, err := fn.NewCall([]Expression{num(1), str("x")}); err == nil {
		t.Fatalf("integer-add over a string must be rejected")
	}
}

func TestSubstring(t *testing.T) {
	v, err := mustApply(t, fnPrefix30+"string-substring", str("hello"), num(1), num(3)).Evaluate(testCtx())
	if err != nil {
		t.Fatalf("substring: %v", err)
	}
	if argValue(v).Str() != "el" {
		t.Fatalf("substring = %q", argValue(v).Str())
	}
	v, err = mustApply(t, fnPrefix30+"string-substring", str("hello"), num(2), num(-1)).Evaluate(testCtx())
	if err != nil || argValue(v).Str() != "llo" {
		t.Fatalf("substring to end = %v, %v", v, err)
	}
	if _, err := mustApply(t, fnPrefix30+"string-substring", str("hi"), num(1), num(9)).Evaluate(testCtx()); err == nil {
		t.Fatalf("out-of-range substring must be Indeterminate")
	}
}

func TestConversions(t *testing.T) {
	v, err := mustApply(t, fnPrefix30+"integer-from-string", str("42")).Evaluate(testCtx())
	if err != nil || argValue(v).Int() != 42 {
		t.Fatalf("integer-from-string = %v, %v", v, err)
	}
	if _, err := mustApply(t, fnPrefix30+"integer-from-string", str("nope")).Evaluate(testCtx()); err == nil {
		t.Fatalf("bad lexical form must be Indeterminate")
	}
	v, err = mustApply(t, fnPrefix30+"string-from-boolean", boolE(true)).Evaluate(testCtx())
	if err != nil || argValue(v).Str() != "true" {
		t.Fatalf("string-from-boolean = %v, %v", v, err)
	}
	v, err = mustApply(t, fnPrefix10+"double-to-integer", dbl(3.7)).Evaluate(testCtx())
	if err != nil || argValue(v).Int() != 3 {
		t.Fatalf("double-to-integer = %v, %v", v, err)
	}
}

func TestTemporalArithmetic(t *testing.T) {
	base, _ := ParseValue(DatatypeDateTime, "2002-03-22T08:00:00Z")
	dur, _ := ParseValue(DatatypeDayTimeDuration, "P1DT4H")
	v, err := mustApply(t, fnPrefix30+"dateTime-add-dayTimeDuration",
		NewConstant(base), NewConstant(dur)).Evaluate(testCtx())
	if err != nil {
		t.Fatalf("dateTime-add-dayTimeDuration: %v", err)
	}
	want := time.Date(2002, 3, 23, 12, 0, 0, 0, time.UTC)
	if !argValue(v).Time().Equal(want) {
		t.Fatalf("added = %v, want %v", argValue(v).Time(), want)
	}

	date, _ := ParseValue(DatatypeDate, "2002-01-31")
	months, _ := ParseValue(DatatypeYearMonthDuration, "P1M")
	v, err = mustApply(t, fnPrefix30+"date-add-yearMonthDuration",
		NewConstant(date), NewConstant(months)).Evaluate(testCtx())
	if err != nil {
		t.Fatalf("date-add-yearMonthDuration: %v", err)
	}
	if got := argValue(v).Time().Month(); got != time.March {
		// Jan 31 + 1 month normalizes per time.AddDate.
		t.Fatalf("month = %v", got)
	}
}

func TestTimeInRangeAcrossMidnight(t *testing.T) {
	mk := func(s string) Expression {
		v, err := ParseValue(DatatypeTime, s)
		if err != nil {
			t.Fatalf("parse time %q: %v", s, err)
		}
		return NewConstant(v)
	}
	if !evalBool(t, mustApply(t, fnPrefix20+"time-in-range", mk("23:30:00"), mk("22:00:00"), mk("06:00:00"))) {
		t.Fatalf("23:30 must be inside 22:00-06:00")
	}
	if evalBool(t, mustApply(t, fnPrefix20+"time-in-range", mk("12:00:00"), mk("22:00:00"), mk("06:00:00"))) {
		t.Fatalf("12:00 must be outside 22:00-06:00")
	}
}

func TestRegexpAndSpecialMatch(t *testing.T) {
	if !evalBool(t, mustApply(t, fnPrefix10+"string-regexp-match", str("^ab+c$"), str("abbbc"))) {
		t.Fatalf("regexp must match")
	}
	if _, err := mustApply(t, fnPrefix10+"string-regexp-match", str("("), str("x")).Evaluate(testCtx()); err == nil {
		t.Fatalf("bad pattern must be Indeterminate")
	}
	mail, _ := ParseValue(DatatypeRFC822Name, "anne.smith@EAST.sun.com")
	if !evalBool(t, mustApply(t, fnPrefix10+"rfc822Name-match", str(".sun.com"), NewConstant(mail))) {
		t.Fatalf("partial-domain rfc822Name-match must hit subdomains")
	}
	if evalBool(t, mustApply(t, fnPrefix10+"rfc822Name-match", str("sun.com"), NewConstant(mail))) {
		t.Fatalf("whole-domain pattern must not match a subdomain mailbox")
	}
	x1, _ := ParseValue(DatatypeX500Name, "O=Medico,C=US")
	x2, _ := ParseValue(DatatypeX500Name, "CN=Julius Hibbert,O=Medico,C=US")
	if !evalBool(t, mustApply(t, fnPrefix10+"x500Name-match", NewConstant(x1), NewConstant(x2))) {
		t.Fatalf("x500Name-match must match terminal RDN sequence")
	}
}

func TestBagAndSetFunctions(t *testing.T) {
	bag := mustApply(t, fnPrefix10+"string-bag", str("a"), str("b"))
	if !evalBool(t, mustApply(t, fnPrefix10+"string-is-in", str("a"), bag)) {
		t.Fatalf("is-in failed")
	}
	v, err := mustApply(t, fnPrefix10+"string-bag-size", bag).Evaluate(testCtx())
	if err != nil || argValue(v).Int() != 2 {
		t.Fatalf("bag-size = %v, %v", v, err)
	}
	if _, err := mustApply(t, fnPrefix10+"string-one-and-only", bag).Evaluate(testCtx()); err == nil {
		t.Fatalf("one-and-only over a two-element bag must fail")
	}

	other := mustApply(t, fnPrefix10+"string-bag", str("b"), str("c"))
	inter, err := mustApply(t, fnPrefix10+"string-intersection", bag, other).Evaluate(testCtx())
	if err != nil {
		t.Fatalf("intersection: %v", err)
	}
	if got := inter.(*Bag); got.Size() != 1 || !got.Contains(NewStringValue("b")) {
		t.Fatalf("intersection = %v", got)
	}
	if !evalBool(t, mustApply(t, fnPrefix10+"string-at-least-one-member-of", bag, other)) {
		t.Fatalf("at-least-one-member-of failed")
	}
	if evalBool(t, mustApply(t, fnPrefix10+"string-subset", bag, other)) {
		t.Fatalf("subset must be false")
	}
}

func TestHigherOrderFunctions(t *testing.T) {
	equal := NewFunctionExpression(testFunctions.MustLookup(fnPrefix10 + "string-equal"))
	bag := mustRawApply(fnPrefix10+"string-bag", str("x"), str("y"))

	if !evalBool(t, mustApply(t, fnPrefix30+"any-of", equal, str("y"), bag)) {
		t.Fatalf("any-of must find y")
	}
	if evalBool(t, mustApply(t, fnPrefix30+"all-of", equal, str("y"), bag)) {
		t.Fatalf("all-of must fail on x")
	}

	gte := NewFunctionExpression(testFunctions.MustLookup(fnPrefix10 + "integer-greater-than-or-equal"))
	lows := mustRawApply(fnPrefix10+"integer-bag", num(5), num(6))
	highs := mustRawApply(fnPrefix10+"integer-bag", num(1), num(4))
	// all-of-any: every element of the first bag >= some element of the second.
	if !evalBool(t, mustApply(t, fnPrefix30+"all-of-any", gte, lows, highs)) {
		t.Fatalf("all-of-any failed")
	}
	// all-of-all: 5 >= 6 is false.
	if evalBool(t, mustApply(t, fnPrefix30+"all-of-all", gte,
		mustRawApply(fnPrefix10+"integer-bag", num(5), num(6)),
		mustRawApply(fnPrefix10+"integer-bag", num(5), num(6)))) {
		t.Fatalf("all-of-all must be false")
	}

	regexpMatch := NewFunctionExpression(testFunctions.MustLookup(fnPrefix10 + "string-regexp-match"))
	// any-of-all: the broken "(" pattern is Indeterminate for its element,
	// but "^a" matches every string, which decides the call.
	if !evalBool(t, mustApply(t, fnPrefix30+"any-of-all", regexpMatch,
		mustRawApply(fnPrefix10+"string-bag", str("("), str("^a")),
		mustRawApply(fnPrefix10+"string-bag", str("abc"), str("aX")))) {
		t.Fatalf("any-of-all must absorb an earlier element's Indeterminate when a later element decides")
	}
	// all-of-any: "zzz" matches nothing, a decisive false past the broken
	// pattern.
	if evalBool(t, mustApply(t, fnPrefix30+"all-of-any", regexpMatch,
		mustRawApply(fnPrefix10+"string-bag", str("("), str("zzz")),
		mustRawApply(fnPrefix10+"string-bag", str("abc")))) {
		t.Fatalf("all-of-any must reach the decisive false behind an Indeterminate element")
	}
	// all-of-all: same decisive false.
	if evalBool(t, mustApply(t, fnPrefix30+"all-of-all", regexpMatch,
		mustRawApply(fnPrefix10+"string-bag", str("("), str("zzz")),
		mustRawApply(fnPrefix10+"string-bag", str("abc")))) {
		t.Fatalf("all-of-all must reach the decisive false behind an Indeterminate element")
	}
	// With no decisive element left, the error finally surfaces.
	if _, err := mustApply(t, fnPrefix30+"any-of-all", regexpMatch,
		mustRawApply(fnPrefix10+"string-bag", str("("), str("^q")),
		mustRawApply(fnPrefix10+"string-bag", str("abc"))).Evaluate(testCtx()); err == nil {
		t.Fatalf("undecided any-of-all with an erroring element must be Indeterminate")
	}

	lower := NewFunctionExpression(testFunctions.MustLookup(fnPrefix10 + "string-normalize-to-lower-case"))
	mapped, err := mustApply(t, fnPrefix30+"map", lower,
		mustRawApply(fnPrefix10+"string-bag", str("Hello"), str("World"))).Evaluate(testCtx())
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	got := mapped.(*Bag)
	if got.Size() != 2 || !got.Contains(NewStringValue("hello")) || !got.Contains(NewStringValue("world")) {
		t.Fatalf("map result = %v", got)
	}
}
