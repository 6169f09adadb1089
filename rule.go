package xacml

// Rule is the leaf decidable of the policy tree: a target, an optional
// condition and an effect, plus PEP action expressions already filtered to
// that effect (core spec 7.10, 7.11).
type Rule struct {
	id        string
	effect    Effect
	target    *Target
	condition *Condition
	obls      []ObligationExpression
	advs      []AdviceExpression
}

// NewRule builds a rule, discarding obligation/advice expressions whose
// FulfillOn/AppliesTo does not match the rule's effect.
func NewRule(id string, effect Effect, target *Target, condition *Condition,
	obls []ObligationExpression, advs []AdviceExpression) *Rule {
	return &Rule{
		id:        id,
		effect:    effect,
		target:    target,
		condition: condition,
		obls:      filterObligations(obls, effect),
		advs:      filterAdvices(advs, effect),
	}
}

func (r *Rule) ID() string     { return r.id }
func (r *Rule) Effect() Effect { return r.effect }

// Evaluate checks the target, then the condition, then evaluates the PEP
// actions. Target or condition Indeterminate yields Indeterminate with the
// rule's effect as extended value.
func (r *Rule) Evaluate(ctx *EvaluationContext) *DecisionResult {
	matched, err := r.target.Evaluate(ctx)
	if err != nil {
		return newIndeterminateResult(r.effect.Extended(), asIndeterminate(err))
	}
	if !matched {
		return simpleNotApplicable
	}

	condTrue, err := r.condition.Evaluate(ctx)
	if err != nil {
		return newIndeterminateResult(r.effect.Extended(), asIndeterminate(err))
	}
	if !condTrue {
		return simpleNotApplicable
	}

	if len(r.obls) == 0 && len(r.advs) == 0 {
		if r.effect == EffectDeny {
			return simpleDeny
		}
		return simplePermit
	}
	obligations, advices, err := evaluatePepActions(ctx, r.obls, r.advs)
	if err != nil {
		return newIndeterminateResult(r.effect.Extended(), asIndeterminate(err))
	}
	return &DecisionResult{Decision: r.effect.Decision(), Obligations: obligations, Advices: advices}
}
