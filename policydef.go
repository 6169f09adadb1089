package xacml

import (
	"encoding/json"
	"fmt"
)

// Compact JSON policy definitions: the engine's own persistence and tooling
// shape, decoded into parsed policy trees by DecodePolicyDocument. This is
// not the XACML wire format; XML policy parsing stays outside the core.

// PolicyDef is the serialized form of a Policy or PolicySet.
type PolicyDef struct {
	ID           string         `json:"id"`
	Version      string         `json:"version,omitempty"`
	CombiningAlg string         `json:"combining_alg"`
	Target       []TargetAnyDef `json:"target,omitempty"`
	Variables    []VariableDef  `json:"variables,omitempty"`
	Rules        []RuleDef      `json:"rules,omitempty"`
	Policies     []PolicyDef    `json:"policies,omitempty"`
	References   []PolicyRef    `json:"references,omitempty"`
	Obligations  []PepActionDef `json:"obligations,omitempty"`
	Advices      []PepActionDef `json:"advices,omitempty"`
}

// TargetAnyDef is one AnyOf: a disjunction of conjunctions of matches.
type TargetAnyDef struct {
	AllOf [][]MatchDef `json:"all_of"`
}

type MatchDef struct {
	Function string        `json:"function"`
	Value    valueJSON     `json:"value"`
	Source   DesignatorDef `json:"source"`
}

type DesignatorDef struct {
	Category      string `json:"category"`
	ID            string `json:"id"`
	Issuer        string `json:"issuer,omitempty"`
	Datatype      string `json:"datatype"`
	MustBePresent bool   `json:"must_be_present,omitempty"`
}

type VariableDef struct {
	ID         string          `json:"id"`
	Expression json.RawMessage `json:"expression"`
}

type RuleDef struct {
	ID          string          `json:"id"`
	Effect      string          `json:"effect"` // "Permit" | "Deny"
	Target      []TargetAnyDef  `json:"target,omitempty"`
	Condition   json.RawMessage `json:"condition,omitempty"`
	Obligations []PepActionDef  `json:"obligations,omitempty"`
	Advices     []PepActionDef  `json:"advices,omitempty"`
}

type PepActionDef struct {
	ID          string          `json:"id"`
	AppliesTo   string          `json:"applies_to"` // "Permit" | "Deny"
	Assignments []AssignmentDef `json:"assignments,omitempty"`
}

type AssignmentDef struct {
	AttributeID string          `json:"attribute_id"`
	Category    string          `json:"category,omitempty"`
	Issuer      string          `json:"issuer,omitempty"`
	Expression  json.RawMessage `json:"expression"`
}

// exprDef is the recursive expression encoding: exactly one field set.
type exprDef struct {
	Value      *valueJSON     `json:"value,omitempty"`
	Designator *DesignatorDef `json:"designator,omitempty"`
	Var        string         `json:"var,omitempty"`
	Function   string         `json:"function,omitempty"` // higher-order sub-function reference
	Apply      *applyDef      `json:"apply,omitempty"`
}

type applyDef struct {
	Function string            `json:"function"`
	Args     []json.RawMessage `json:"args"`
}

// PolicyDefDecoder decodes PolicyDefs against a function and combining
// registry pair.
type PolicyDefDecoder struct {
	functions *FunctionRegistry
	combining *CombiningRegistry
	provider  PolicyProvider // for references; may be nil when none occur
}

func NewPolicyDefDecoder(functions *FunctionRegistry, combining *CombiningRegistry, provider PolicyProvider) *PolicyDefDecoder {
	return &PolicyDefDecoder{functions: functions, combining: combining, provider: provider}
}

// DecodeDocument decodes a stored policy document body (a PolicyDef in
// JSON). Suitable as the PolicyDecoder hook of StorePolicyProvider and
// ReloadablePolicyProvider.
func (d *PolicyDefDecoder) DecodeDocument(doc *PolicyDocument) (PolicyElement, error) {
	var def PolicyDef
	if err := json.Unmarshal(doc.Body, &def); err != nil {
		return nil, fmt.Errorf("policy document %q: %w", doc.ID, err)
	}
	if def.ID == "" {
		def.ID = doc.ID
	}
	if def.Version == "" {
		def.Version = doc.Version
	}
	return d.Decode(&def)
}

// Decode turns a definition into a Policy (rules) or PolicySet (policies or
// references).
func (d *PolicyDefDecoder) Decode(def *PolicyDef) (PolicyElement, error) {
	alg, ok := d.combining.Lookup(def.CombiningAlg)
	if !ok {
		return nil, fmt.Errorf("policy %q: unknown combining algorithm %q", def.ID, def.CombiningAlg)
	}
	target, err := d.decodeTarget(def.Target)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", def.ID, err)
	}
	obls, advs, err := d.decodePepActions(def.Obligations, def.Advices, nil)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", def.ID, err)
	}

	if len(def.Policies) > 0 || len(def.References) > 0 {
		if len(def.Rules) > 0 {
			return nil, fmt.Errorf("policy %q mixes rules with child policies", def.ID)
		}
		elements := make([]PolicyElement, 0, len(def.Policies)+len(def.References))
		for i := range def.Policies {
			child, cerr := d.Decode(&def.Policies[i])
			if cerr != nil {
				return nil, cerr
			}
			elements = append(elements, child)
		}
		for _, ref := range def.References {
			if d.provider == nil {
				return nil, fmt.Errorf("policy %q references %q but no provider is configured", def.ID, ref.ID)
			}
			elements = append(elements, NewPolicyReference(ref.ID, ref.Version, d.provider))
		}
		return NewPolicySet(def.ID, def.Version, target, elements, alg, obls, advs)
	}

	vars := make([]*VariableDefinition, 0, len(def.Variables))
	scope := make(map[string]*VariableDefinition, len(def.Variables))
	for _, v := range def.Variables {
		// Forward references resolve against the same scope; cycles are
		// rejected by NewPolicy.
		scope[v.ID] = &VariableDefinition{ID: v.ID}
	}
	for _, v := range def.Variables {
		expr, verr := d.decodeExpr(v.Expression, scope)
		if verr != nil {
			return nil, fmt.Errorf("policy %q variable %q: %w", def.ID, v.ID, verr)
		}
		scope[v.ID].Expression = expr
		vars = append(vars, scope[v.ID])
	}
	rules := make([]*Rule, 0, len(def.Rules))
	for _, rd := range def.Rules {
		rule, rerr := d.decodeRule(rd, scope)
		if rerr != nil {
			return nil, fmt.Errorf("policy %q: %w", def.ID, rerr)
		}
		rules = append(rules, rule)
	}
	return NewPolicy(def.ID, def.Version, target, vars, rules, alg, obls, advs)
}

func decodeEffect(s string) (Effect, error) {
	switch s {
	case "Permit":
		return EffectPermit, nil
	case "Deny":
		return EffectDeny, nil
	}
	return EffectPermit, fmt.Errorf("unknown effect %q", s)
}

func (d *PolicyDefDecoder) decodeRule(def RuleDef, scope map[string]*VariableDefinition) (*Rule, error) {
	effect, err := decodeEffect(def.Effect)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", def.ID, err)
	}
	target, err := d.decodeTarget(def.Target)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", def.ID, err)
	}
	var cond *Condition
	if len(def.Condition) > 0 {
		expr, cerr := d.decodeExpr(def.Condition, scope)
		if cerr != nil {
			return nil, fmt.Errorf("rule %q condition: %w", def.ID, cerr)
		}
		cond, cerr = NewCondition(expr)
		if cerr != nil {
			return nil, fmt.Errorf("rule %q: %w", def.ID, cerr)
		}
	}
	obls, advs, err := d.decodePepActions(def.Obligations, def.Advices, scope)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", def.ID, err)
	}
	return NewRule(def.ID, effect, target, cond, obls, advs), nil
}

func (d *PolicyDefDecoder) decodeTarget(anyOfs []TargetAnyDef) (*Target, error) {
	if len(anyOfs) == 0 {
		return nil, nil
	}
	out := make([]*AnyOf, 0, len(anyOfs))
	for _, anyDef := range anyOfs {
		allOfs := make([]*AllOf, 0, len(anyDef.AllOf))
		for _, allDef := range anyDef.AllOf {
			matches := make([]*Match, 0, len(allDef))
			for _, md := range allDef {
				m, err := d.decodeMatch(md)
				if err != nil {
					return nil, err
				}
				matches = append(matches, m)
			}
			allOfs = append(allOfs, &AllOf{Matches: matches})
		}
		out = append(out, &AnyOf{AllOfs: allOfs})
	}
	return NewTarget(out...), nil
}

func (d *PolicyDefDecoder) decodeMatch(def MatchDef) (*Match, error) {
	fn, ok := d.functions.Lookup(def.Function)
	if !ok {
		return nil, fmt.Errorf("unknown MatchId %q", def.Function)
	}
	literal, err := ParseValue(def.Value.Datatype, def.Value.Value)
	if err != nil {
		return nil, err
	}
	src := NewAttributeDesignator(
		AttributeFqn{Category: def.Source.Category, ID: def.Source.ID, Issuer: def.Source.Issuer},
		PrimitiveType(def.Source.Datatype), def.Source.MustBePresent)
	return NewMatch(fn, literal, src)
}

func (d *PolicyDefDecoder) decodePepActions(obls, advs []PepActionDef, scope map[string]*VariableDefinition) ([]ObligationExpression, []AdviceExpression, error) {
	var obligations []ObligationExpression
	for _, od := range obls {
		effect, err := decodeEffect(od.AppliesTo)
		if err != nil {
			return nil, nil, fmt.Errorf("obligation %q: %w", od.ID, err)
		}
		assigns, err := d.decodeAssignments(od.Assignments, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("obligation %q: %w", od.ID, err)
		}
		obligations = append(obligations, ObligationExpression{ID: od.ID, FulfillOn: effect, Assignments: assigns})
	}
	var advices []AdviceExpression
	for _, ad := range advs {
		effect, err := decodeEffect(ad.AppliesTo)
		if err != nil {
			return nil, nil, fmt.Errorf("advice %q: %w", ad.ID, err)
		}
		assigns, err := d.decodeAssignments(ad.Assignments, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("advice %q: %w", ad.ID, err)
		}
		advices = append(advices, AdviceExpression{ID: ad.ID, AppliesTo: effect, Assignments: assigns})
	}
	return obligations, advices, nil
}

func (d *PolicyDefDecoder) decodeAssignments(defs []AssignmentDef, scope map[string]*VariableDefinition) ([]AttributeAssignmentExpression, error) {
	out := make([]AttributeAssignmentExpression, 0, len(defs))
	for _, ad := range defs {
		expr, err := d.decodeExpr(ad.Expression, scope)
		if err != nil {
			return nil, fmt.Errorf("assignment %q: %w", ad.AttributeID, err)
		}
		out = append(out, AttributeAssignmentExpression{
			AttributeID: ad.AttributeID,
			Category:    ad.Category,
			Issuer:      ad.Issuer,
			Expr:        expr,
		})
	}
	return out, nil
}

func (d *PolicyDefDecoder) decodeExpr(raw json.RawMessage, scope map[string]*VariableDefinition) (Expression, error) {
	var def exprDef
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, err
	}
	switch {
	case def.Value != nil:
		v, err := ParseValue(def.Value.Datatype, def.Value.Value)
		if err != nil {
			return nil, err
		}
		return NewConstant(v), nil
	case def.Designator != nil:
		return NewAttributeDesignator(
			AttributeFqn{Category: def.Designator.Category, ID: def.Designator.ID, Issuer: def.Designator.Issuer},
			PrimitiveType(def.Designator.Datatype), def.Designator.MustBePresent), nil
	case def.Var != "":
		vd, ok := scope[def.Var]
		if !ok {
			return nil, fmt.Errorf("undefined variable %q", def.Var)
		}
		return NewVariableReference(vd), nil
	case def.Function != "":
		fn, ok := d.functions.Lookup(def.Function)
		if !ok {
			return nil, fmt.Errorf("unknown function %q", def.Function)
		}
		return NewFunctionExpression(fn), nil
	case def.Apply != nil:
		fn, ok := d.functions.Lookup(def.Apply.Function)
		if !ok {
			return nil, fmt.Errorf("unknown function %q", def.Apply.Function)
		}
		args := make([]Expression, 0, len(def.Apply.Args))
		for _, rawArg := range def.Apply.Args {
			arg, err := d.decodeExpr(rawArg, scope)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		return NewApply(fn, args...)
	}
	return nil, fmt.Errorf("expression must set exactly one of value, designator, var, function, apply")
}
