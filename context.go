package xacml

import (
	"context"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/oarkflow/xacml/logger"
)

// AttributeFqn names an attribute by category, id and optional issuer.
type AttributeFqn struct {
	Category string `json:"category"`
	ID       string `json:"id"`
	Issuer   string `json:"issuer,omitempty"`
}

func (f AttributeFqn) String() string {
	s := f.Category + "|" + f.ID
	if f.Issuer != "" {
		s += "|" + f.Issuer
	}
	return s
}

type designatorKey struct {
	fqn        AttributeFqn
	datatypeID string
}

// EvaluationContext carries everything one individual decision request needs
// during evaluation. It is confined to a single evaluation and a single
// goroutine; nothing in it is shared.
type EvaluationContext struct {
	goCtx    context.Context
	named    map[AttributeFqn]*Bag
	contents map[string]*xmlquery.Node

	providers    *AttributeProviderRegistry
	strictIssuer bool

	designatorCache map[designatorKey]*Bag
	variableCache   map[*VariableDefinition]any
	varDepth        int
	maxVarDepth     int

	refPath     []string
	maxRefDepth int

	returnPolicyIdList bool
	trackUsed          bool
	used               []AttributeFqn
	usedSeen           map[AttributeFqn]struct{}

	deadline    time.Time
	hasDeadline bool

	log logger.Logger
}

// NewEvaluationContext builds a context over the given named attribute bags
// and per-category Content nodes. The maps are owned by the context for the
// duration of the evaluation.
func NewEvaluationContext(goCtx context.Context, named map[AttributeFqn]*Bag, contents map[string]*xmlquery.Node) *EvaluationContext {
	if goCtx == nil {
		goCtx = context.Background()
	}
	if named == nil {
		named = make(map[AttributeFqn]*Bag)
	}
	ctx := &EvaluationContext{
		goCtx:           goCtx,
		named:           named,
		contents:        contents,
		designatorCache: make(map[designatorKey]*Bag),
		variableCache:   make(map[*VariableDefinition]any),
		maxVarDepth:     DefaultMaxVariableRefDepth,
		maxRefDepth:     DefaultMaxPolicyRefDepth,
		log:             logger.NewNullLogger(),
	}
	if dl, ok := goCtx.Deadline(); ok {
		ctx.deadline = dl
		ctx.hasDeadline = true
	}
	return ctx
}

func (ctx *EvaluationContext) Context() context.Context { return ctx.goCtx }

// checkDeadline aborts evaluation once the caller-supplied deadline passes.
func (ctx *EvaluationContext) checkDeadline() *IndeterminateError {
	if ctx.hasDeadline && !time.Now().Before(ctx.deadline) {
		return newIndeterminate(StatusProcessingError, "deadline exceeded")
	}
	select {
	case <-ctx.goCtx.Done():
		return newIndeterminate(StatusProcessingError, "deadline exceeded")
	default:
		return nil
	}
}

// Content returns the request's extra XML content for a category, or nil.
func (ctx *EvaluationContext) Content(category string) *xmlquery.Node {
	if ctx.contents == nil {
		return nil
	}
	return ctx.contents[category]
}

func (ctx *EvaluationContext) markUsed(fqn AttributeFqn) {
	if !ctx.trackUsed {
		return
	}
	if ctx.usedSeen == nil {
		ctx.usedSeen = make(map[AttributeFqn]struct{})
	}
	if _, seen := ctx.usedSeen[fqn]; seen {
		return
	}
	ctx.usedSeen[fqn] = struct{}{}
	ctx.used = append(ctx.used, fqn)
}

// UsedAttributes is the trace of attributes consumed during evaluation, in
// first-use order. Empty unless tracking was enabled.
func (ctx *EvaluationContext) UsedAttributes() []AttributeFqn { return ctx.used }

// ResolveDesignator looks up an attribute bag for a designator: request
// attributes first, then registered attribute providers, memoizing the
// result either way. A missing attribute with mustBePresent set is a
// missing-attribute error carrying the designator.
func (ctx *EvaluationContext) ResolveDesignator(fqn AttributeFqn, elementType Datatype, mustBePresent bool) (*Bag, error) {
	if err := ctx.checkDeadline(); err != nil {
		return nil, err
	}
	key := designatorKey{fqn: fqn, datatypeID: elementType.ID}
	if bag, hit := ctx.designatorCache[key]; hit {
		if bag.IsEmpty() && mustBePresent {
			return nil, missingAttributeError(fqn, elementType.ID)
		}
		return bag, nil
	}
	ctx.markUsed(fqn)

	bag, err := ctx.lookupNamed(fqn, elementType)
	if err != nil {
		return nil, err
	}
	if bag == nil && ctx.providers != nil {
		bag, err = ctx.providers.resolve(ctx, fqn, elementType)
		if err != nil {
			// Provider failures count as missing attributes, not fatal errors.
			bag = emptyBagWithCause(elementType, asIndeterminate(err))
		}
	}
	if bag == nil {
		bag = emptyBagWithCause(elementType, missingAttributeError(fqn, elementType.ID))
	}
	ctx.designatorCache[key] = bag
	if bag.IsEmpty() && mustBePresent {
		return nil, missingAttributeError(fqn, elementType.ID)
	}
	return bag, nil
}

// lookupNamed finds the request-supplied bag for a designator. Designators
// without an issuer match any issuer unless strict matching is on (core
// spec 5.29).
func (ctx *EvaluationContext) lookupNamed(fqn AttributeFqn, elementType Datatype) (*Bag, error) {
	if bag, ok := ctx.named[fqn]; ok {
		return ctx.checkBagType(fqn, bag, elementType)
	}
	if fqn.Issuer != "" || ctx.strictIssuer {
		return nil, nil
	}
	var merged *Bag
	for k, bag := range ctx.named {
		if k.Category != fqn.Category || k.ID != fqn.ID {
			continue
		}
		checked, err := ctx.checkBagType(k, bag, elementType)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = checked
		} else {
			vals := append(append([]*AttributeValue{}, merged.Values()...), checked.Values()...)
			merged = NewBag(elementType, vals...)
		}
	}
	return merged, nil
}

func (ctx *EvaluationContext) checkBagType(fqn AttributeFqn, bag *Bag, elementType Datatype) (*Bag, error) {
	if bag.ElementType() != elementType {
		return nil, newIndeterminate(StatusProcessingError,
			"attribute %s has datatype %s, designator expects %s", fqn, bag.ElementType(), elementType)
	}
	return bag, nil
}

// evaluateVariable resolves a variable definition, memoizing per definition
// and bounding the nesting depth.
func (ctx *EvaluationContext) evaluateVariable(def *VariableDefinition) (any, error) {
	if v, hit := ctx.variableCache[def]; hit {
		return v, nil
	}
	if ctx.varDepth >= ctx.maxVarDepth {
		return nil, newIndeterminate(StatusProcessingError,
			"variable reference depth exceeds %d at %q", ctx.maxVarDepth, def.ID)
	}
	ctx.varDepth++
	v, err := def.Expression.Evaluate(ctx)
	ctx.varDepth--
	if err != nil {
		return nil, wrapIndeterminate(err, StatusProcessingError, "variable %q", def.ID)
	}
	ctx.variableCache[def] = v
	return v, nil
}

// enterPolicyRef pushes a reference onto the evaluation path, enforcing the
// depth limit and rejecting cycles. The caller must call leavePolicyRef.
func (ctx *EvaluationContext) enterPolicyRef(id string) *IndeterminateError {
	if len(ctx.refPath) >= ctx.maxRefDepth {
		return newIndeterminate(StatusProcessingError,
			"policy reference depth exceeds %d at %q", ctx.maxRefDepth, id)
	}
	for _, seen := range ctx.refPath {
		if seen == id {
			return newIndeterminate(StatusProcessingError, "policy reference cycle at %q", id)
		}
	}
	ctx.refPath = append(ctx.refPath, id)
	return nil
}

func (ctx *EvaluationContext) leavePolicyRef() {
	ctx.refPath = ctx.refPath[:len(ctx.refPath)-1]
}
