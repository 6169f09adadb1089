package xacml

// Builders provide a fluent API for assembling policy trees
// programmatically, in place of the XML wire format.

// RuleBuilder builds a Rule.
type RuleBuilder struct {
	id     string
	effect Effect
	target *Target
	cond   *Condition
	obls   []ObligationExpression
	advs   []AdviceExpression
	err    error
}

func NewRuleBuilder(id string, effect Effect) *RuleBuilder {
	return &RuleBuilder{id: id, effect: effect}
}

func (b *RuleBuilder) Target(t *Target) *RuleBuilder { b.target = t; return b }

func (b *RuleBuilder) Condition(expr Expression) *RuleBuilder {
	if b.err != nil {
		return b
	}
	cond, err := NewCondition(expr)
	if err != nil {
		b.err = err
		return b
	}
	b.cond = cond
	return b
}

func (b *RuleBuilder) Obligation(o ObligationExpression) *RuleBuilder {
	b.obls = append(b.obls, o)
	return b
}

func (b *RuleBuilder) Advice(a AdviceExpression) *RuleBuilder {
	b.advs = append(b.advs, a)
	return b
}

func (b *RuleBuilder) Build() (*Rule, error) {
	if b.err != nil {
		return nil, b.err
	}
	return NewRule(b.id, b.effect, b.target, b.cond, b.obls, b.advs), nil
}

// PolicyBuilder builds a Policy.
type PolicyBuilder struct {
	id      string
	version string
	target  *Target
	vars    []*VariableDefinition
	rules   []*Rule
	alg     CombiningAlgorithm
	obls    []ObligationExpression
	advs    []AdviceExpression
	err     error
}

func NewPolicyBuilder(id, version string) *PolicyBuilder {
	return &PolicyBuilder{id: id, version: version}
}

func (b *PolicyBuilder) Target(t *Target) *PolicyBuilder { b.target = t; return b }

func (b *PolicyBuilder) Variable(id string, expr Expression) *PolicyBuilder {
	b.vars = append(b.vars, &VariableDefinition{ID: id, Expression: expr})
	return b
}

func (b *PolicyBuilder) Rule(r *Rule, err error) *PolicyBuilder {
	if err != nil && b.err == nil {
		b.err = err
		return b
	}
	b.rules = append(b.rules, r)
	return b
}

func (b *PolicyBuilder) CombiningAlg(alg CombiningAlgorithm) *PolicyBuilder { b.alg = alg; return b }

func (b *PolicyBuilder) Obligation(o ObligationExpression) *PolicyBuilder {
	b.obls = append(b.obls, o)
	return b
}

func (b *PolicyBuilder) Advice(a AdviceExpression) *PolicyBuilder {
	b.advs = append(b.advs, a)
	return b
}

func (b *PolicyBuilder) Build() (*Policy, error) {
	if b.err != nil {
		return nil, b.err
	}
	return NewPolicy(b.id, b.version, b.target, b.vars, b.rules, b.alg, b.obls, b.advs)
}

// PolicySetBuilder builds a PolicySet.
type PolicySetBuilder struct {
	id       string
	version  string
	target   *Target
	elements []PolicyElement
	alg      CombiningAlgorithm
	obls     []ObligationExpression
	advs     []AdviceExpression
	err      error
}

func NewPolicySetBuilder(id, version string) *PolicySetBuilder {
	return &PolicySetBuilder{id: id, version: version}
}

func (b *PolicySetBuilder) Target(t *Target) *PolicySetBuilder { b.target = t; return b }

func (b *PolicySetBuilder) Policy(p *Policy, err error) *PolicySetBuilder {
	if err != nil && b.err == nil {
		b.err = err
		return b
	}
	b.elements = append(b.elements, p)
	return b
}

func (b *PolicySetBuilder) PolicySet(ps *PolicySet, err error) *PolicySetBuilder {
	if err != nil && b.err == nil {
		b.err = err
		return b
	}
	b.elements = append(b.elements, ps)
	return b
}

func (b *PolicySetBuilder) Reference(ref *PolicyReference) *PolicySetBuilder {
	b.elements = append(b.elements, ref)
	return b
}

func (b *PolicySetBuilder) CombiningAlg(alg CombiningAlgorithm) *PolicySetBuilder {
	b.alg = alg
	return b
}

func (b *PolicySetBuilder) Obligation(o ObligationExpression) *PolicySetBuilder {
	b.obls = append(b.obls, o)
	return b
}

func (b *PolicySetBuilder) Advice(a AdviceExpression) *PolicySetBuilder {
	b.advs = append(b.advs, a)
	return b
}

func (b *PolicySetBuilder) Build() (*PolicySet, error) {
	if b.err != nil {
		return nil, b.err
	}
	return NewPolicySet(b.id, b.version, b.target, b.elements, b.alg, b.obls, b.advs)
}

// TargetBuilder assembles AnyOf/AllOf/Match trees.
type TargetBuilder struct {
	anyOfs []*AnyOf
	err    error
}

func NewTargetBuilder() *TargetBuilder { return &TargetBuilder{} }

// AnyOf adds one AnyOf whose AllOfs each hold a single Match — the common
// "match any of these attributes" shape.
func (b *TargetBuilder) AnyOf(matches ...*Match) *TargetBuilder {
	allOfs := make([]*AllOf, 0, len(matches))
	for _, m := range matches {
		allOfs = append(allOfs, &AllOf{Matches: []*Match{m}})
	}
	b.anyOfs = append(b.anyOfs, &AnyOf{AllOfs: allOfs})
	return b
}

// AllOf adds one AnyOf holding a single conjunctive AllOf.
func (b *TargetBuilder) AllOf(matches ...*Match) *TargetBuilder {
	b.anyOfs = append(b.anyOfs, &AnyOf{AllOfs: []*AllOf{{Matches: matches}}})
	return b
}

func (b *TargetBuilder) Build() *Target { return NewTarget(b.anyOfs...) }

// MustMatch is a convenience for tests and fixtures where the match is known
// to be well-formed.
func MustMatch(matchFn Function, literal *AttributeValue, source Expression) *Match {
	m, err := NewMatch(matchFn, literal, source)
	if err != nil {
		panic(err)
	}
	return m
}
