package xacml

import (
	"context"
	"testing"
)

const (
	ageAttrID     = "urn:example:age"
	bartAgeAttrID = "urn:example:bart-simpson-age"
)

func hibbertCtx(tb testing.TB) *EvaluationContext {
	tb.Helper()
	named := map[AttributeFqn]*Bag{
		{Category: CategorySubject, ID: subjectID}:     NewBag(PrimitiveType(DatatypeString), NewStringValue("Julius Hibbert")),
		{Category: CategorySubject, ID: ageAttrID}:     NewBag(PrimitiveType(DatatypeInteger), NewIntegerValue(55)),
		{Category: CategorySubject, ID: bartAgeAttrID}: NewBag(PrimitiveType(DatatypeInteger), NewIntegerValue(10)),
	}
	return NewEvaluationContext(context.Background(), named, nil)
}

func intDesignator(id string) Expression {
	return NewAttributeDesignator(AttributeFqn{Category: CategorySubject, ID: id}, PrimitiveType(DatatypeInteger), true)
}

// ageDifferenceCondition is integer-subtract(age, bart-age) >= 5.
func ageDifferenceCondition() Expression {
	diff := mustRawApply(fnPrefix10+"integer-subtract",
		mustRawApply(fnPrefix10+"integer-one-and-only", intDesignator(ageAttrID)),
		mustRawApply(fnPrefix10+"integer-one-and-only", intDesignator(bartAgeAttrID)))
	return mustRawApply(fnPrefix10+"integer-greater-than-or-equal", diff, num(5))
}

// TestNestedPermitOverrides mirrors the IID013 conformance shape: a policy
// set and its policies both combine with permit-overrides, and the second
// policy's rule fires on an age-difference condition.
func TestNestedPermitOverrides(t *testing.T) {
	reg := StandardCombiningRegistry()
	pover, _ := reg.Lookup(PolicyCombPrefix30 + "permit-overrides")
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")

	ps, err := NewPolicySetBuilder("policyset-1", "1.0").
		Target(NewTargetBuilder().AnyOf(subjectMatch(t, "Julius Hibbert")).Build()).
		Policy(NewPolicyBuilder("policy-1", "1.0").
			Rule(NewRuleBuilder("rule-1", EffectPermit).
				Target(NewTargetBuilder().AnyOf(subjectMatch(t, "John Smith")).Build()).
				Build()).
			CombiningAlg(rover).
			Build()).
		Policy(NewPolicyBuilder("policy-2", "1.0").
			Rule(NewRuleBuilder("rule-2", EffectPermit).
				Condition(ageDifferenceCondition()).
				Build()).
			CombiningAlg(rover).
			Build()).
		CombiningAlg(pover).
		Build()
	if err != nil {
		t.Fatalf("build policy set: %v", err)
	}

	res := ps.Evaluate(hibbertCtx(t))
	if res.Decision != Permit {
		t.Fatalf("decision = %v (%v), want Permit", res.Decision, res.Status)
	}
	if len(res.Obligations) != 0 {
		t.Fatalf("obligations = %+v, want none", res.Obligations)
	}
}

func TestPolicyTargetIndeterminateIsDP(t *testing.T) {
	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	p, err := NewPolicyBuilder("p", "1.0").
		Target(NewTargetBuilder().AnyOf(mustFailingMatch(t)).Build()).
		Rule(NewRuleBuilder("r", EffectPermit).Build()).
		CombiningAlg(rover).
		Build()
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	res := p.Evaluate(testCtx())
	if res.Decision != Indeterminate || res.Extended != ExtendedPermitDeny {
		t.Fatalf("result = %v/%v, want Indeterminate{DP}", res.Decision, res.Extended)
	}
}

func TestObligationOrderingChildrenFirst(t *testing.T) {
	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	pover, _ := reg.Lookup(PolicyCombPrefix30 + "permit-overrides")

	ps, err := NewPolicySetBuilder("ps", "1.0").
		Policy(NewPolicyBuilder("p", "1.0").
			Rule(NewRuleBuilder("r", EffectPermit).
				Obligation(ObligationExpression{ID: "from-rule", FulfillOn: EffectPermit}).
				Build()).
			CombiningAlg(rover).
			Obligation(ObligationExpression{ID: "from-policy", FulfillOn: EffectPermit}).
			Build()).
		CombiningAlg(pover).
		Obligation(ObligationExpression{ID: "from-policyset", FulfillOn: EffectPermit}).
		Obligation(ObligationExpression{ID: "only-on-deny", FulfillOn: EffectDeny}).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	res := ps.Evaluate(testCtx())
	if res.Decision != Permit {
		t.Fatalf("decision = %v", res.Decision)
	}
	want := []string{"from-rule", "from-policy", "from-policyset"}
	if len(res.Obligations) != len(want) {
		t.Fatalf("obligations = %+v, want %v", res.Obligations, want)
	}
	for i, id := range want {
		if res.Obligations[i].ID != id {
			t.Fatalf("obligation[%d] = %q, want %q (depth-first document order)", i, res.Obligations[i].ID, id)
		}
	}
}

// countingExpr counts its evaluations, for the memoization test.
type countingExpr struct {
	count int
}

func (c *countingExpr) ReturnType() Datatype { return PrimitiveType(DatatypeBoolean) }

func (c *countingExpr) Evaluate(_ *EvaluationContext) (any, error) {
	c.count++
	return NewBooleanValue(true), nil
}

func (c *countingExpr) String() string { return "counting" }

func TestVariableDefinitionMemoizedPerContext(t *testing.T) {
	counter := &countingExpr{}
	def := &VariableDefinition{ID: "v", Expression: counter}
	cond := mustRawApply(fnPrefix10+"and", NewVariableReference(def), NewVariableReference(def))

	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	p, err := NewPolicy("p", "1.0", nil, []*VariableDefinition{def},
		[]*Rule{NewRule("r", EffectPermit, nil, mustCondition(t, cond), nil, nil)},
		rover, nil, nil)
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}

	if res := p.Evaluate(testCtx()); res.Decision != Permit {
		t.Fatalf("decision = %v", res.Decision)
	}
	if counter.count != 1 {
		t.Fatalf("variable evaluated %d times in one context, want 1", counter.count)
	}

	// A fresh context re-evaluates.
	if res := p.Evaluate(testCtx()); res.Decision != Permit {
		t.Fatalf("decision = %v", res.Decision)
	}
	if counter.count != 2 {
		t.Fatalf("variable evaluated %d times across two contexts, want 2", counter.count)
	}
}

func TestVariableCycleRejectedAtParse(t *testing.T) {
	a := &VariableDefinition{ID: "a"}
	b := &VariableDefinition{ID: "b"}
	a.Expression = mustRawApply(fnPrefix10+"not", NewVariableReference(b))
	b.Expression = mustRawApply(fnPrefix10+"not", NewVariableReference(a))

	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	_, err := NewPolicy("p", "1.0", nil, []*VariableDefinition{a, b},
		[]*Rule{NewRule("r", EffectPermit, nil, nil, nil, nil)}, rover, nil, nil)
	if err == nil {
		t.Fatalf("variable cycle must be rejected at parse time")
	}
}

func TestApplicablePolicyIdentifiers(t *testing.T) {
	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	pover, _ := reg.Lookup(PolicyCombPrefix30 + "permit-overrides")

	ps, err := NewPolicySetBuilder("ps", "2.0").
		Policy(NewPolicyBuilder("p", "1.1").
			Rule(NewRuleBuilder("r", EffectPermit).Build()).
			CombiningAlg(rover).
			Build()).
		CombiningAlg(pover).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := testCtx()
	ctx.returnPolicyIdList = true
	res := ps.Evaluate(ctx)
	if res.Decision != Permit {
		t.Fatalf("decision = %v", res.Decision)
	}
	want := []PolicyRef{{ID: "p", Version: "1.1"}, {ID: "ps", Version: "2.0"}}
	if len(res.ApplicablePolicies) != len(want) {
		t.Fatalf("applicable = %+v, want %+v", res.ApplicablePolicies, want)
	}
	for i, ref := range want {
		if res.ApplicablePolicies[i] != ref {
			t.Fatalf("applicable[%d] = %+v, want %+v", i, res.ApplicablePolicies[i], ref)
		}
	}

	// Without the request flag nothing is collected.
	if res := ps.Evaluate(testCtx()); len(res.ApplicablePolicies) != 0 {
		t.Fatalf("applicable must be empty when not requested, got %+v", res.ApplicablePolicies)
	}
}

func mustCondition(t *testing.T, expr Expression) *Condition {
	t.Helper()
	c, err := NewCondition(expr)
	if err != nil {
		t.Fatalf("condition: %v", err)
	}
	return c
}
