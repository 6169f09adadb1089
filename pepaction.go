package xacml

// PEP action expressions: obligation and advice templates whose attribute
// assignments are evaluated only when their policy or rule decides.

// AttributeAssignmentExpression produces one or more AttributeAssignments
// from an expression. A bag-valued expression yields one assignment per
// element (core spec 5.41); an empty bag yields none.
type AttributeAssignmentExpression struct {
	AttributeID string
	Category    string
	Issuer      string
	Expr        Expression
}

func (a *AttributeAssignmentExpression) evaluate(ctx *EvaluationContext) ([]AttributeAssignment, error) {
	v, err := a.Expr.Evaluate(ctx)
	if err != nil {
		return nil, asIndeterminate(err)
	}
	mk := func(val *AttributeValue) AttributeAssignment {
		return AttributeAssignment{AttributeID: a.AttributeID, Category: a.Category, Issuer: a.Issuer, Value: val}
	}
	switch tv := v.(type) {
	case *Bag:
		out := make([]AttributeAssignment, 0, tv.Size())
		for _, elem := range tv.Values() {
			out = append(out, mk(elem))
		}
		return out, nil
	case *AttributeValue:
		return []AttributeAssignment{mk(tv)}, nil
	}
	return nil, newIndeterminate(StatusProcessingError, "attribute assignment %q produced no value", a.AttributeID)
}

// ObligationExpression is an obligation template bound to the effect it
// fulfils on.
type ObligationExpression struct {
	ID          string
	FulfillOn   Effect
	Assignments []AttributeAssignmentExpression
}

// AdviceExpression is an advice template bound to the effect it applies to.
type AdviceExpression struct {
	ID          string
	AppliesTo   Effect
	Assignments []AttributeAssignmentExpression
}

// filterObligations keeps only the expressions whose FulfillOn matches the
// effect. Rules apply it once at construction, since their effect is fixed;
// policies and policy sets apply it at evaluation time to the combined
// decision.
func filterObligations(exps []ObligationExpression, effect Effect) []ObligationExpression {
	var kept []ObligationExpression
	for _, e := range exps {
		if e.FulfillOn == effect {
			kept = append(kept, e)
		}
	}
	return kept
}

func filterAdvices(exps []AdviceExpression, effect Effect) []AdviceExpression {
	var kept []AdviceExpression
	for _, e := range exps {
		if e.AppliesTo == effect {
			kept = append(kept, e)
		}
	}
	return kept
}

// evaluatePepActions evaluates pre-filtered obligation and advice
// expressions. Any indeterminate assignment makes the whole enclosing rule
// or policy Indeterminate (core spec 7.18).
func evaluatePepActions(ctx *EvaluationContext, obls []ObligationExpression, advs []AdviceExpression) ([]Obligation, []Advice, error) {
	var obligations []Obligation
	for _, oe := range obls {
		var assignments []AttributeAssignment
		for _, ae := range oe.Assignments {
			as, err := ae.evaluate(ctx)
			if err != nil {
				return nil, nil, wrapIndeterminate(err, StatusProcessingError, "obligation %q", oe.ID)
			}
			assignments = append(assignments, as...)
		}
		obligations = append(obligations, Obligation{ID: oe.ID, Assignments: assignments})
	}
	var advices []Advice
	for _, ae := range advs {
		var assignments []AttributeAssignment
		for _, aa := range ae.Assignments {
			as, err := aa.evaluate(ctx)
			if err != nil {
				return nil, nil, wrapIndeterminate(err, StatusProcessingError, "advice %q", ae.ID)
			}
			assignments = append(assignments, as...)
		}
		advices = append(advices, Advice{ID: ae.ID, Assignments: assignments})
	}
	return obligations, advices, nil
}
