package xacml

import "fmt"

// PolicyElement is a node of the policy tree a PolicySet can combine:
// policies, policy sets and references to either.
type PolicyElement interface {
	Decidable
	MatchTarget(ctx *EvaluationContext) (bool, error)
	Ref() PolicyRef
}

// Policy combines rules under a rule-combining algorithm (core spec 5.14).
// Parsed policies are immutable and shared across evaluations.
type Policy struct {
	id      string
	version string
	target  *Target
	rules   []*Rule
	alg     CombiningAlgorithm
	vars    map[string]*VariableDefinition
	obls    []ObligationExpression
	advs    []AdviceExpression

	children []Decidable // rules as decidables, in document order
}

func NewPolicy(id, version string, target *Target, vars []*VariableDefinition, rules []*Rule,
	alg CombiningAlgorithm, obls []ObligationExpression, advs []AdviceExpression) (*Policy, error) {
	if id == "" {
		return nil, fmt.Errorf("policy requires an id")
	}
	if alg == nil {
		return nil, fmt.Errorf("policy %q requires a rule-combining algorithm", id)
	}
	varMap := make(map[string]*VariableDefinition, len(vars))
	for _, v := range vars {
		if _, dup := varMap[v.ID]; dup {
			return nil, fmt.Errorf("policy %q: duplicate variable %q", id, v.ID)
		}
		varMap[v.ID] = v
	}
	if err := checkVariableCycles(id, vars); err != nil {
		return nil, err
	}
	children := make([]Decidable, len(rules))
	for i, r := range rules {
		children[i] = r
	}
	return &Policy{
		id:       id,
		version:  version,
		target:   target,
		rules:    rules,
		alg:      alg,
		vars:     varMap,
		obls:     obls,
		advs:     advs,
		children: children,
	}, nil
}

// checkVariableCycles rejects variable definitions that reference each other
// in a cycle. Detection is at parse time so evaluation never recurses
// unboundedly through references.
func checkVariableCycles(policyID string, vars []*VariableDefinition) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*VariableDefinition]int, len(vars))
	var visit func(def *VariableDefinition) error
	visit = func(def *VariableDefinition) error {
		switch state[def] {
		case visiting:
			return fmt.Errorf("policy %q: variable definition cycle at %q", policyID, def.ID)
		case done:
			return nil
		}
		state[def] = visiting
		for _, ref := range variableRefs(def.Expression) {
			if err := visit(ref.def); err != nil {
				return err
			}
		}
		state[def] = done
		return nil
	}
	for _, def := range vars {
		if err := visit(def); err != nil {
			return err
		}
	}
	return nil
}

// variableRefs walks an expression tree for variable references.
func variableRefs(expr Expression) []*VariableReference {
	switch e := expr.(type) {
	case *VariableReference:
		return []*VariableReference{e}
	case *Apply:
		var out []*VariableReference
		if call, ok := e.call.(*firstOrderCall); ok {
			for _, arg := range call.args {
				out = append(out, variableRefs(arg)...)
			}
		}
		if call, ok := e.call.(*lazyLogicalCall); ok {
			for _, arg := range call.args {
				out = append(out, variableRefs(arg)...)
			}
		}
		if call, ok := e.call.(*nOfCall); ok {
			for _, arg := range call.args {
				out = append(out, variableRefs(arg)...)
			}
		}
		if call, ok := e.call.(*higherOrderCall); ok {
			for _, arg := range call.args {
				out = append(out, variableRefs(arg)...)
			}
		}
		return out
	default:
		return nil
	}
}

func (p *Policy) Ref() PolicyRef { return PolicyRef{ID: p.id, Version: p.version} }

// Variable returns a variable definition by id, for building
// VariableReferences against this policy's scope.
func (p *Policy) Variable(id string) (*VariableDefinition, bool) {
	v, ok := p.vars[id]
	return v, ok
}

func (p *Policy) MatchTarget(ctx *EvaluationContext) (bool, error) {
	return p.target.Evaluate(ctx)
}

func (p *Policy) Evaluate(ctx *EvaluationContext) *DecisionResult {
	return evaluatePolicyNode(ctx, p.target, p.alg, p.children, p.obls, p.advs, p.Ref())
}

// PolicySet combines policies, policy sets and references under a
// policy-combining algorithm (core spec 5.15).
type PolicySet struct {
	id      string
	version string
	target  *Target
	alg     CombiningAlgorithm
	obls    []ObligationExpression
	advs    []AdviceExpression

	elements []PolicyElement
	children []Decidable
}

func NewPolicySet(id, version string, target *Target, elements []PolicyElement,
	alg CombiningAlgorithm, obls []ObligationExpression, advs []AdviceExpression) (*PolicySet, error) {
	if id == "" {
		return nil, fmt.Errorf("policy set requires an id")
	}
	if alg == nil {
		return nil, fmt.Errorf("policy set %q requires a policy-combining algorithm", id)
	}
	children := make([]Decidable, len(elements))
	for i, e := range elements {
		children[i] = e
	}
	return &PolicySet{
		id:       id,
		version:  version,
		target:   target,
		alg:      alg,
		obls:     obls,
		advs:     advs,
		elements: elements,
		children: children,
	}, nil
}

func (ps *PolicySet) Ref() PolicyRef { return PolicyRef{ID: ps.id, Version: ps.version} }

func (ps *PolicySet) MatchTarget(ctx *EvaluationContext) (bool, error) {
	return ps.target.Evaluate(ctx)
}

func (ps *PolicySet) Evaluate(ctx *EvaluationContext) *DecisionResult {
	return evaluatePolicyNode(ctx, ps.target, ps.alg, ps.children, ps.obls, ps.advs, ps.Ref())
}

// evaluatePolicyNode is the shared Policy/PolicySet evaluation: target gate,
// combining algorithm, then this node's own PEP actions filtered to the
// decision, appended after the children's (children-first ordering across
// the tree).
func evaluatePolicyNode(ctx *EvaluationContext, target *Target, alg CombiningAlgorithm,
	children []Decidable, obls []ObligationExpression, advs []AdviceExpression, self PolicyRef) *DecisionResult {

	matched, err := target.Evaluate(ctx)
	if err != nil {
		// The effect this node would have produced is unknown here, so the
		// extended indeterminate is DP (core spec 7.12, AuthzForce reading).
		return newIndeterminateResult(ExtendedPermitDeny, asIndeterminate(err))
	}
	if !matched {
		return simpleNotApplicable
	}

	combined := alg.Combine(ctx, children)
	if combined.Decision != Permit && combined.Decision != Deny {
		return combined
	}

	effect := EffectPermit
	if combined.Decision == Deny {
		effect = EffectDeny
	}
	ownObls, ownAdvs, err := evaluatePepActions(ctx, filterObligations(obls, effect), filterAdvices(advs, effect))
	if err != nil {
		ext := effect.Extended()
		return newIndeterminateResult(ext, asIndeterminate(err))
	}

	out := &DecisionResult{
		Decision:    combined.Decision,
		Obligations: append(append([]Obligation{}, combined.Obligations...), ownObls...),
		Advices:     append(append([]Advice{}, combined.Advices...), ownAdvs...),
	}
	if ctx.returnPolicyIdList {
		out.ApplicablePolicies = append(append([]PolicyRef{}, combined.ApplicablePolicies...), self)
	}
	return out
}
