package xacml

import "encoding/json"

// Decision is the outcome of evaluating a rule, policy or policy set.
type Decision uint8

const (
	NotApplicable Decision = iota
	Permit
	Deny
	Indeterminate
)

func (d Decision) String() string {
	switch d {
	case Permit:
		return "Permit"
	case Deny:
		return "Deny"
	case Indeterminate:
		return "Indeterminate"
	default:
		return "NotApplicable"
	}
}

func (d Decision) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Decision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "Permit":
		*d = Permit
	case "Deny":
		*d = Deny
	case "Indeterminate":
		*d = Indeterminate
	default:
		*d = NotApplicable
	}
	return nil
}

// ExtendedIndeterminate qualifies an Indeterminate decision with the set of
// decisions it could have been (core spec 7.10).
type ExtendedIndeterminate uint8

const (
	ExtendedNone ExtendedIndeterminate = iota
	ExtendedPermit
	ExtendedDeny
	ExtendedPermitDeny
)

func (x ExtendedIndeterminate) String() string {
	switch x {
	case ExtendedPermit:
		return "P"
	case ExtendedDeny:
		return "D"
	case ExtendedPermitDeny:
		return "DP"
	default:
		return ""
	}
}

func (x ExtendedIndeterminate) MarshalJSON() ([]byte, error) { return json.Marshal(x.String()) }

func (x *ExtendedIndeterminate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "P":
		*x = ExtendedPermit
	case "D":
		*x = ExtendedDeny
	case "DP":
		*x = ExtendedPermitDeny
	default:
		*x = ExtendedNone
	}
	return nil
}

// Effect is the decision a rule renders when it applies.
type Effect uint8

const (
	EffectPermit Effect = iota
	EffectDeny
)

func (e Effect) String() string {
	if e == EffectDeny {
		return "Deny"
	}
	return "Permit"
}

// Decision returns the effect as a decision.
func (e Effect) Decision() Decision {
	if e == EffectDeny {
		return Deny
	}
	return Permit
}

// Extended returns the extended-indeterminate value matching the effect,
// used when a rule's target or condition is Indeterminate (core spec 7.11).
func (e Effect) Extended() ExtendedIndeterminate {
	if e == EffectDeny {
		return ExtendedDeny
	}
	return ExtendedPermit
}

// AttributeAssignment is one evaluated attribute binding inside an
// Obligation or Advice.
type AttributeAssignment struct {
	AttributeID string          `json:"attribute_id"`
	Category    string          `json:"category,omitempty"`
	Issuer      string          `json:"issuer,omitempty"`
	Value       *AttributeValue `json:"value"`
}

// Obligation is a PEP action the enforcement point must honour.
type Obligation struct {
	ID          string                `json:"id"`
	Assignments []AttributeAssignment `json:"assignments,omitempty"`
}

// Advice is an informational PEP action.
type Advice struct {
	ID          string                `json:"id"`
	Assignments []AttributeAssignment `json:"assignments,omitempty"`
}

// PolicyRef identifies a policy or policy set by id and version, used both
// for references inside policy sets and for the applicable-policy trace.
type PolicyRef struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// DecisionResult is the outcome of one sub-evaluation in the policy tree.
// Immutable once returned; combining algorithms build fresh results instead
// of mutating children.
type DecisionResult struct {
	Decision           Decision              `json:"decision"`
	Extended           ExtendedIndeterminate `json:"extended,omitempty"`
	Status             *Status               `json:"status,omitempty"`
	Obligations        []Obligation          `json:"obligations,omitempty"`
	Advices            []Advice              `json:"advices,omitempty"`
	ApplicablePolicies []PolicyRef           `json:"applicable_policies,omitempty"`
	UsedAttributes     []AttributeFqn        `json:"used_attributes,omitempty"`
}

// Shared constant results for the common no-PEP-action cases.
var (
	simplePermit        = &DecisionResult{Decision: Permit}
	simpleDeny          = &DecisionResult{Decision: Deny}
	simpleNotApplicable = &DecisionResult{Decision: NotApplicable}
)

func newIndeterminateResult(ext ExtendedIndeterminate, err *IndeterminateError) *DecisionResult {
	return &DecisionResult{Decision: Indeterminate, Extended: ext, Status: err.Status()}
}

// Decidable is anything the combining algorithms can evaluate: rules,
// policies, policy sets and policy references.
type Decidable interface {
	Evaluate(ctx *EvaluationContext) *DecisionResult
}
