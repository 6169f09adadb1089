package xacml

import (
	"context"
	"time"

	"github.com/oarkflow/xacml/logger"
)

// Result is one entry of a Response.
type Result struct {
	Decision           Decision          `json:"decision"`
	Status             *Status           `json:"status,omitempty"`
	Obligations        []Obligation      `json:"obligations,omitempty"`
	Advices            []Advice          `json:"advices,omitempty"`
	Attributes         []RequestCategory `json:"attributes,omitempty"`
	ApplicablePolicies []PolicyRef       `json:"applicable_policies,omitempty"`
}

// Response is the PDP's answer to one Request.
type Response struct {
	Results []Result `json:"results"`
}

// ResultPostprocessor turns per-individual decision results into the final
// Response. The identity postprocessor emits one Result per individual
// request; the combined-decision postprocessor aggregates them.
type ResultPostprocessor interface {
	SupportsCombinedDecision() bool
	Process(req *Request, individuals []*IndividualDecisionRequest, results []*DecisionResult) *Response
}

// IdentityResultPostprocessor maps each decision result to one Result.
type IdentityResultPostprocessor struct{}

func (IdentityResultPostprocessor) SupportsCombinedDecision() bool { return false }

func (IdentityResultPostprocessor) Process(_ *Request, individuals []*IndividualDecisionRequest, results []*DecisionResult) *Response {
	resp := &Response{Results: make([]Result, 0, len(results))}
	for i, res := range results {
		out := Result{
			Decision:           res.Decision,
			Status:             res.Status,
			Obligations:        res.Obligations,
			Advices:            res.Advices,
			ApplicablePolicies: res.ApplicablePolicies,
		}
		if i < len(individuals) && individuals[i] != nil {
			out.Attributes = individuals[i].Echoed()
		}
		resp.Results = append(resp.Results, out)
	}
	return resp
}

// CombinedDecisionPostprocessor aggregates multiple individual decisions
// into one Result per the Multiple Decision Profile: identical Permit/Deny
// decisions without obligations or advice combine, NotApplicable results are
// skipped (all NotApplicable gives NotApplicable), and an Indeterminate, a
// disagreement or any obligation or advice gives Indeterminate.
type CombinedDecisionPostprocessor struct{}

func (CombinedDecisionPostprocessor) SupportsCombinedDecision() bool { return true }

func (CombinedDecisionPostprocessor) Process(req *Request, individuals []*IndividualDecisionRequest, results []*DecisionResult) *Response {
	if !req.CombinedDecision {
		return IdentityResultPostprocessor{}.Process(req, individuals, results)
	}
	combined := NotApplicable
	for _, res := range results {
		if res.Decision == Indeterminate {
			return indeterminateResponse(newIndeterminate(StatusProcessingError,
				"cannot combine an Indeterminate individual decision"))
		}
		if len(res.Obligations) > 0 || len(res.Advices) > 0 {
			return indeterminateResponse(newIndeterminate(StatusProcessingError,
				"cannot combine decisions carrying obligations or advice"))
		}
		if res.Decision == NotApplicable {
			continue
		}
		if combined == NotApplicable {
			combined = res.Decision
		} else if combined != res.Decision {
			return indeterminateResponse(newIndeterminate(StatusProcessingError,
				"individual decisions disagree, cannot combine"))
		}
	}
	if combined == NotApplicable {
		return &Response{Results: []Result{{Decision: NotApplicable}}}
	}
	return &Response{Results: []Result{{Decision: combined}}}
}

func indeterminateResponse(err *IndeterminateError) *Response {
	return &Response{Results: []Result{{Decision: Indeterminate, Status: err.Status()}}}
}

// EnvironmentSource selects where the current-time family of attributes
// comes from.
type EnvironmentSource uint8

const (
	// RequestElsePDP prefers request-supplied values, falling back to the
	// PDP snapshot. The default.
	RequestElsePDP EnvironmentSource = iota
	// PDPOnly ignores request-supplied current-* attributes.
	PDPOnly
	// RequestOnly never injects PDP values.
	RequestOnly
)

// PDP orchestrates preprocess, per-individual evaluation, decision caching
// and result post-processing. Safe for concurrent Evaluate calls.
type PDP struct {
	resolver  *RootPolicyResolver
	preproc   RequestPreprocessor
	postproc  ResultPostprocessor
	cache     DecisionCache
	providers *AttributeProviderRegistry

	strictIssuer bool
	envSource    EnvironmentSource
	maxVarDepth  int
	maxRefDepth  int
	trackUsed    bool

	clock func() time.Time
	log   logger.Logger
}

// PDPOption configures a PDP at construction.
type PDPOption func(*PDP) error

func WithRequestPreprocessor(p RequestPreprocessor) PDPOption {
	return func(e *PDP) error { e.preproc = p; return nil }
}

func WithResultPostprocessor(p ResultPostprocessor) PDPOption {
	return func(e *PDP) error { e.postproc = p; return nil }
}

func WithDecisionCache(c DecisionCache) PDPOption {
	return func(e *PDP) error { e.cache = c; return nil }
}

func WithAttributeProviders(r *AttributeProviderRegistry) PDPOption {
	return func(e *PDP) error { e.providers = r; return nil }
}

func WithStrictAttributeIssuerMatch(strict bool) PDPOption {
	return func(e *PDP) error { e.strictIssuer = strict; return nil }
}

func WithEnvironmentSource(src EnvironmentSource) PDPOption {
	return func(e *PDP) error { e.envSource = src; return nil }
}

func WithMaxVariableRefDepth(n int) PDPOption {
	return func(e *PDP) error { e.maxVarDepth = n; return nil }
}

func WithMaxPolicyRefDepth(n int) PDPOption {
	return func(e *PDP) error { e.maxRefDepth = n; return nil }
}

// WithUsedAttributeTracking records the attributes each evaluation consumed.
func WithUsedAttributeTracking(on bool) PDPOption {
	return func(e *PDP) error { e.trackUsed = on; return nil }
}

// WithLogger installs a structured logger on the PDP.
func WithLogger(l logger.Logger) PDPOption {
	return func(e *PDP) error { e.log = l; return nil }
}

// WithClock overrides the PDP-issued attribute snapshot source.
func WithClock(clock func() time.Time) PDPOption {
	return func(e *PDP) error { e.clock = clock; return nil }
}

func NewPDP(resolver *RootPolicyResolver, opts ...PDPOption) (*PDP, error) {
	e := &PDP{
		resolver:    resolver,
		postproc:    IdentityResultPostprocessor{},
		maxVarDepth: DefaultMaxVariableRefDepth,
		maxRefDepth: DefaultMaxPolicyRefDepth,
		clock:       time.Now,
		log:         logger.NewPhusluLogger(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.preproc == nil {
		e.preproc = NewDefaultRequestPreprocessor(PreprocessorCapabilities{
			PolicyIdListSupported:     true,
			CombinedDecisionSupported: e.postproc.SupportsCombinedDecision(),
		})
	}
	return e, nil
}

// Evaluate runs the full pipeline. It never returns a Go error: every
// failure is encoded as an Indeterminate Result with a status code.
func (e *PDP) Evaluate(goCtx context.Context, req *Request) *Response {
	if goCtx == nil {
		goCtx = context.Background()
	}
	individuals, err := e.preproc.Process(req)
	if err != nil {
		ie := asIndeterminate(err)
		e.log.Info("request rejected", "status", ie.StatusCode, "error", ie.Message)
		return indeterminateResponse(ie)
	}

	pdpIssued := e.issuedAttributes()

	var cached map[*IndividualDecisionRequest]*DecisionResult
	if e.cache != nil {
		cached = e.cache.GetAll(individuals)
	}

	results := make([]*DecisionResult, len(individuals))
	var fresh map[*IndividualDecisionRequest]*DecisionResult
	for i, individual := range individuals {
		if res := cached[individual]; res != nil {
			results[i] = res
			continue
		}
		res := e.evaluateIndividual(goCtx, individual, pdpIssued)
		results[i] = res
		if e.cache != nil && res.Decision != Indeterminate {
			if fresh == nil {
				fresh = make(map[*IndividualDecisionRequest]*DecisionResult)
			}
			fresh[individual] = res
		}
	}
	if len(fresh) > 0 {
		e.cache.PutAll(fresh)
	}

	resp := e.postproc.Process(req, individuals, results)
	for _, r := range resp.Results {
		e.log.Debug("decision", "decision", r.Decision.String(), "obligations", len(r.Obligations))
	}
	return resp
}

// EvaluateBatch evaluates several requests on the calling goroutine.
func (e *PDP) EvaluateBatch(goCtx context.Context, reqs []*Request) []*Response {
	out := make([]*Response, len(reqs))
	for i, req := range reqs {
		out[i] = e.Evaluate(goCtx, req)
	}
	return out
}

// evaluateIndividual builds the per-request evaluation context and descends
// into the policy tree.
func (e *PDP) evaluateIndividual(goCtx context.Context, individual *IndividualDecisionRequest, pdpIssued map[AttributeFqn]*Bag) *DecisionResult {
	named := make(map[AttributeFqn]*Bag, len(individual.named)+len(pdpIssued))
	switch e.envSource {
	case PDPOnly:
		for k, v := range individual.named {
			named[k] = v
		}
		for k, v := range pdpIssued {
			named[k] = v
		}
	case RequestOnly:
		for k, v := range individual.named {
			named[k] = v
		}
	default: // RequestElsePDP
		for k, v := range pdpIssued {
			named[k] = v
		}
		for k, v := range individual.named {
			named[k] = v
		}
	}

	ctx := NewEvaluationContext(goCtx, named, individual.contents)
	ctx.providers = e.providers
	ctx.strictIssuer = e.strictIssuer
	ctx.maxVarDepth = e.maxVarDepth
	ctx.maxRefDepth = e.maxRefDepth
	ctx.returnPolicyIdList = individual.returnPolicyIdList
	ctx.trackUsed = e.trackUsed
	ctx.log = e.log

	res := e.resolver.FindAndEvaluate(ctx)
	if e.trackUsed && len(ctx.used) > 0 {
		traced := *res
		traced.UsedAttributes = append([]AttributeFqn{}, ctx.used...)
		return &traced
	}
	return res
}

// issuedAttributes derives current-time, current-date and current-dateTime
// from a single clock snapshot so the three always agree.
func (e *PDP) issuedAttributes() map[AttributeFqn]*Bag {
	if e.envSource == RequestOnly {
		return nil
	}
	now := e.clock()
	mk := func(id string, v *AttributeValue) (AttributeFqn, *Bag) {
		fqn := AttributeFqn{Category: CategoryEnvironment, ID: id}
		return fqn, NewBag(v.Datatype(), v)
	}
	out := make(map[AttributeFqn]*Bag, 3)
	k, v := mk(AttributeCurrentTime, NewTimeValue(now))
	out[k] = v
	k, v = mk(AttributeCurrentDate, NewDateValue(now))
	out[k] = v
	k, v = mk(AttributeCurrentDateTime, NewDateTimeValue(now))
	out[k] = v
	return out
}

// Close cascades shutdown to the root policy resolver, attribute providers
// and decision cache.
func (e *PDP) Close() error {
	var firstErr error
	if err := e.resolver.Close(); err != nil {
		firstErr = err
	}
	if e.providers != nil {
		if err := e.providers.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
