package xacml

import "fmt"

// Combining-algorithm identifier prefixes.
const (
	RuleCombPrefix10   = "urn:oasis:names:tc:xacml:1.0:rule-combining-algorithm:"
	RuleCombPrefix11   = "urn:oasis:names:tc:xacml:1.1:rule-combining-algorithm:"
	RuleCombPrefix30   = "urn:oasis:names:tc:xacml:3.0:rule-combining-algorithm:"
	PolicyCombPrefix10 = "urn:oasis:names:tc:xacml:1.0:policy-combining-algorithm:"
	PolicyCombPrefix11 = "urn:oasis:names:tc:xacml:1.1:policy-combining-algorithm:"
	PolicyCombPrefix30 = "urn:oasis:names:tc:xacml:3.0:policy-combining-algorithm:"
)

// CombiningAlgorithm folds an ordered list of child decisions into one.
// Children are evaluated in document order; obligations of children that do
// not contribute to the final decision are discarded (core spec 7.18).
type CombiningAlgorithm interface {
	ID() string
	Combine(ctx *EvaluationContext, children []Decidable) *DecisionResult
}

// CombiningRegistry maps algorithm URIs to implementations.
type CombiningRegistry struct {
	algs map[string]CombiningAlgorithm
}

func NewCombiningRegistry() *CombiningRegistry {
	return &CombiningRegistry{algs: make(map[string]CombiningAlgorithm, 32)}
}

// StandardCombiningRegistry installs the standard algorithms under every
// rule and policy URI they are published as. The 1.x legacy URIs share the
// 3.0 implementations.
func StandardCombiningRegistry() *CombiningRegistry {
	r := NewCombiningRegistry()
	both := func(name string, mk func(id string) CombiningAlgorithm) {
		for _, prefix := range []string{RuleCombPrefix10, RuleCombPrefix30, PolicyCombPrefix10, PolicyCombPrefix30} {
			r.mustRegister(mk(prefix + name))
		}
	}
	both("deny-overrides", func(id string) CombiningAlgorithm { return &overridesAlg{id: id, overriding: Deny} })
	both("permit-overrides", func(id string) CombiningAlgorithm { return &overridesAlg{id: id, overriding: Permit} })
	both("first-applicable", func(id string) CombiningAlgorithm { return &firstApplicableAlg{id: id} })
	for _, prefix := range []string{RuleCombPrefix11, RuleCombPrefix30, PolicyCombPrefix11, PolicyCombPrefix30} {
		r.mustRegister(&overridesAlg{id: prefix + "ordered-deny-overrides", overriding: Deny})
		r.mustRegister(&overridesAlg{id: prefix + "ordered-permit-overrides", overriding: Permit})
	}
	for _, prefix := range []string{RuleCombPrefix30, PolicyCombPrefix30} {
		r.mustRegister(&unlessAlg{id: prefix + "deny-unless-permit", def: Deny})
		r.mustRegister(&unlessAlg{id: prefix + "permit-unless-deny", def: Permit})
	}
	r.mustRegister(&onlyOneApplicableAlg{id: PolicyCombPrefix10 + "only-one-applicable"})
	r.mustRegister(&onPermitApplySecondAlg{id: PolicyCombPrefix30 + "on-permit-apply-second"})
	return r
}

func (r *CombiningRegistry) Register(alg CombiningAlgorithm) error {
	if _, exists := r.algs[alg.ID()]; exists {
		return fmt.Errorf("combining algorithm already registered: %s", alg.ID())
	}
	r.algs[alg.ID()] = alg
	return nil
}

func (r *CombiningRegistry) mustRegister(alg CombiningAlgorithm) {
	if err := r.Register(alg); err != nil {
		panic(err)
	}
}

func (r *CombiningRegistry) Lookup(id string) (CombiningAlgorithm, bool) {
	a, ok := r.algs[id]
	return a, ok
}

// overridesAlg implements deny-overrides and permit-overrides (and their
// ordered variants, which differ only in the license to reorder that this
// implementation never uses). Core spec C.2/C.3.
type overridesAlg struct {
	id         string
	overriding Decision
}

func (a *overridesAlg) ID() string { return a.id }

func (a *overridesAlg) Combine(ctx *EvaluationContext, children []Decidable) *DecisionResult {
	var (
		errOverriding bool // Indeterminate{X} where X is the overriding effect
		errOther      bool
		errBoth       bool
		sawOther      bool
		firstErr      *Status
		otherObls     []Obligation
		otherAdvs     []Advice
		otherRefs     []PolicyRef
	)
	for _, child := range children {
		res := child.Evaluate(ctx)
		switch res.Decision {
		case a.overriding:
			return res
		case Permit, Deny:
			sawOther = true
			otherObls = append(otherObls, res.Obligations...)
			otherAdvs = append(otherAdvs, res.Advices...)
			otherRefs = append(otherRefs, res.ApplicablePolicies...)
		case Indeterminate:
			if firstErr == nil {
				firstErr = res.Status
			}
			switch res.Extended {
			case ExtendedPermitDeny:
				errBoth = true
			case ExtendedDeny:
				if a.overriding == Deny {
					errOverriding = true
				} else {
					errOther = true
				}
			case ExtendedPermit:
				if a.overriding == Permit {
					errOverriding = true
				} else {
					errOther = true
				}
			}
		}
	}
	indeterminate := func(ext ExtendedIndeterminate) *DecisionResult {
		status := firstErr
		if status == nil {
			status = &Status{Code: StatusProcessingError}
		}
		return &DecisionResult{Decision: Indeterminate, Extended: ext, Status: status}
	}
	// Precedence follows the wd-17 C.2/C.3 tables: an Indeterminate carrying
	// the non-overriding effect outranks that effect's plain decision when no
	// overriding decision was seen.
	switch {
	case errBoth, errOverriding && (errOther || sawOther):
		return indeterminate(ExtendedPermitDeny)
	case errOverriding:
		if a.overriding == Deny {
			return indeterminate(ExtendedDeny)
		}
		return indeterminate(ExtendedPermit)
	case errOther:
		if a.overriding == Deny {
			return indeterminate(ExtendedPermit)
		}
		return indeterminate(ExtendedDeny)
	case sawOther:
		other := Permit
		if a.overriding == Permit {
			other = Deny
		}
		return &DecisionResult{Decision: other, Obligations: otherObls, Advices: otherAdvs, ApplicablePolicies: otherRefs}
	default:
		return simpleNotApplicable
	}
}

// unlessAlg implements deny-unless-permit and permit-unless-deny: the
// opposite of def wins immediately, everything else folds to def and
// Indeterminate is absorbed. Core spec C.6/C.7.
type unlessAlg struct {
	id  string
	def Decision
}

func (a *unlessAlg) ID() string { return a.id }

func (a *unlessAlg) Combine(ctx *EvaluationContext, children []Decidable) *DecisionResult {
	var defObls []Obligation
	var defAdvs []Advice
	var defRefs []PolicyRef
	for _, child := range children {
		res := child.Evaluate(ctx)
		switch res.Decision {
		case Permit, Deny:
			if res.Decision != a.def {
				return res
			}
			defObls = append(defObls, res.Obligations...)
			defAdvs = append(defAdvs, res.Advices...)
			defRefs = append(defRefs, res.ApplicablePolicies...)
		}
	}
	return &DecisionResult{Decision: a.def, Obligations: defObls, Advices: defAdvs, ApplicablePolicies: defRefs}
}

// firstApplicableAlg returns the first child result that is not
// NotApplicable, Indeterminate included. Core spec C.8.
type firstApplicableAlg struct {
	id string
}

func (a *firstApplicableAlg) ID() string { return a.id }

func (a *firstApplicableAlg) Combine(ctx *EvaluationContext, children []Decidable) *DecisionResult {
	for _, child := range children {
		res := child.Evaluate(ctx)
		if res.Decision != NotApplicable {
			return res
		}
	}
	return simpleNotApplicable
}

// applicabilityChecker is implemented by policies and policy references;
// only-one-applicable decides on target applicability before evaluating.
type applicabilityChecker interface {
	MatchTarget(ctx *EvaluationContext) (bool, error)
}

// onlyOneApplicableAlg (policies only): NotApplicable when nothing applies,
// Indeterminate when more than one child applies or any applicability check
// is itself Indeterminate, else the one applicable child's result. Core
// spec C.9.
type onlyOneApplicableAlg struct {
	id string
}

func (a *onlyOneApplicableAlg) ID() string { return a.id }

func (a *onlyOneApplicableAlg) Combine(ctx *EvaluationContext, children []Decidable) *DecisionResult {
	var selected Decidable
	for _, child := range children {
		checker, ok := child.(applicabilityChecker)
		if !ok {
			return newIndeterminateResult(ExtendedPermitDeny, newIndeterminate(StatusProcessingError,
				"only-one-applicable combines policies, not rules"))
		}
		matched, err := checker.MatchTarget(ctx)
		if err != nil {
			return newIndeterminateResult(ExtendedPermitDeny, asIndeterminate(err))
		}
		if !matched {
			continue
		}
		if selected != nil {
			return newIndeterminateResult(ExtendedPermitDeny, newIndeterminate(StatusProcessingError,
				"more than one policy applies under only-one-applicable"))
		}
		selected = child
	}
	if selected == nil {
		return simpleNotApplicable
	}
	return selected.Evaluate(ctx)
}

// onPermitApplySecondAlg (policies only, combining-algorithm profile): the
// first child is a guard; its Permit selects the second child, its Deny and
// NotApplicable are final, and Indeterminate passes through.
type onPermitApplySecondAlg struct {
	id string
}

func (a *onPermitApplySecondAlg) ID() string { return a.id }

func (a *onPermitApplySecondAlg) Combine(ctx *EvaluationContext, children []Decidable) *DecisionResult {
	if len(children) != 2 {
		return newIndeterminateResult(ExtendedPermitDeny, newIndeterminate(StatusProcessingError,
			"on-permit-apply-second requires exactly two children, got %d", len(children)))
	}
	guard := children[0].Evaluate(ctx)
	switch guard.Decision {
	case Permit:
		return children[1].Evaluate(ctx)
	case NotApplicable:
		return simpleNotApplicable
	default:
		return guard
	}
}
