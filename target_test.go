package xacml

import (
	"context"
	"testing"
)

const subjectID = "urn:oasis:names:tc:xacml:1.0:subject:subject-id"

func subjectCtx(name string) *EvaluationContext {
	named := map[AttributeFqn]*Bag{
		{Category: CategorySubject, ID: subjectID}: NewBag(PrimitiveType(DatatypeString), NewStringValue(name)),
	}
	return NewEvaluationContext(context.Background(), named, nil)
}

func subjectMatch(t *testing.T, literal string) *Match {
	t.Helper()
	m, err := NewMatch(
		testFunctions.MustLookup(fnPrefix10+"string-equal"),
		NewStringValue(literal),
		NewAttributeDesignator(AttributeFqn{Category: CategorySubject, ID: subjectID}, PrimitiveType(DatatypeString), false),
	)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	return m
}

func TestAbsentTargetMatchesAll(t *testing.T) {
	var target *Target
	ok, err := target.Evaluate(subjectCtx("anyone"))
	if err != nil || !ok {
		t.Fatalf("nil target = %v, %v; want true", ok, err)
	}
	ok, err = NewTarget().Evaluate(subjectCtx("anyone"))
	if err != nil || !ok {
		t.Fatalf("empty target = %v, %v; want true", ok, err)
	}
}

func TestTargetMatchOverBag(t *testing.T) {
	ctx := NewEvaluationContext(context.Background(), map[AttributeFqn]*Bag{
		{Category: CategorySubject, ID: subjectID}: NewBag(PrimitiveType(DatatypeString),
			NewStringValue("alice"), NewStringValue("bob")),
	}, nil)
	target := NewTargetBuilder().AnyOf(subjectMatch(t, "bob")).Build()
	ok, err := target.Evaluate(ctx)
	if err != nil || !ok {
		t.Fatalf("match over bag = %v, %v; want true", ok, err)
	}
}

func TestTargetIdempotentWithinContext(t *testing.T) {
	ctx := subjectCtx("alice")
	target := NewTargetBuilder().AnyOf(subjectMatch(t, "alice")).Build()
	first, err1 := target.Evaluate(ctx)
	second, err2 := target.Evaluate(ctx)
	if err1 != nil || err2 != nil || first != second {
		t.Fatalf("repeated evaluation differs: %v/%v %v/%v", first, err1, second, err2)
	}
}

func TestAllOfFalseBeatsIndeterminate(t *testing.T) {
	// A failing match (mustBePresent designator over a missing attribute)
	// followed by a definite non-match: AllOf is false, not Indeterminate.
	failing, err := NewMatch(
		testFunctions.MustLookup(fnPrefix10+"string-equal"),
		NewStringValue("whatever"),
		NewAttributeDesignator(AttributeFqn{Category: CategorySubject, ID: "urn:example:absent"}, PrimitiveType(DatatypeString), true),
	)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	target := NewTargetBuilder().AllOf(failing, subjectMatch(t, "nobody")).Build()
	ok, err := target.Evaluate(subjectCtx("alice"))
	if err != nil {
		t.Fatalf("AllOf with a definite false must not be Indeterminate: %v", err)
	}
	if ok {
		t.Fatalf("AllOf must be false")
	}

	// Without the definite false the Indeterminate surfaces.
	target = NewTargetBuilder().AllOf(failing, subjectMatch(t, "alice")).Build()
	if _, err := target.Evaluate(subjectCtx("alice")); err == nil {
		t.Fatalf("expected Indeterminate")
	}
}

func TestAnyOfTrueBeatsIndeterminate(t *testing.T) {
	failing, err := NewMatch(
		testFunctions.MustLookup(fnPrefix10+"string-equal"),
		NewStringValue("whatever"),
		NewAttributeDesignator(AttributeFqn{Category: CategorySubject, ID: "urn:example:absent"}, PrimitiveType(DatatypeString), true),
	)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	target := NewTargetBuilder().AnyOf(failing, subjectMatch(t, "alice")).Build()
	ok, terr := target.Evaluate(subjectCtx("alice"))
	if terr != nil || !ok {
		t.Fatalf("AnyOf with a definite true must be true, got %v, %v", ok, terr)
	}
}

func TestMatchRejectsTypeMismatch(t *testing.T) {
	_, err := NewMatch(
		testFunctions.MustLookup(fnPrefix10+"integer-equal"),
		NewStringValue("oops"),
		NewAttributeDesignator(AttributeFqn{Category: CategorySubject, ID: subjectID}, PrimitiveType(DatatypeString), false),
	)
	if err == nil {
		t.Fatalf("integer-equal over a string literal must be rejected at construction")
	}
}
