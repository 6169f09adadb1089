package xacml

import (
	"context"
	"testing"
	"time"

	"github.com/oarkflow/xacml/logger"
)

func permitRootProvider(t *testing.T) (*StaticPolicyProvider, *RootPolicyResolver) {
	t.Helper()
	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	p, err := NewPolicyBuilder("root", "1.0").
		Rule(NewRuleBuilder("r", EffectPermit).
			Target(NewTargetBuilder().AnyOf(subjectMatch(t, "alice")).Build()).
			Build()).
		CombiningAlg(rover).
		Build()
	if err != nil {
		t.Fatalf("build root policy: %v", err)
	}
	provider := NewStaticPolicyProvider(p)
	resolver, err := NewRootPolicyResolver(provider, "root", "")
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	return provider, resolver
}

func TestPDPEndToEnd(t *testing.T) {
	_, resolver := permitRootProvider(t)
	pdp, err := NewPDP(resolver, WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("pdp: %v", err)
	}
	defer pdp.Close()

	resp := pdp.Evaluate(context.Background(), simpleRequest())
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d", len(resp.Results))
	}
	if resp.Results[0].Decision != Permit {
		t.Fatalf("decision = %v (%v), want Permit", resp.Results[0].Decision, resp.Results[0].Status)
	}

	// A non-matching subject is NotApplicable.
	req := simpleRequest()
	req.Categories[0].Attributes[0].Values = []*AttributeValue{NewStringValue("mallory")}
	resp = pdp.Evaluate(context.Background(), req)
	if resp.Results[0].Decision != NotApplicable {
		t.Fatalf("decision = %v, want NotApplicable", resp.Results[0].Decision)
	}
}

func TestPDPDeterminism(t *testing.T) {
	_, resolver := permitRootProvider(t)
	clock := func() time.Time { return time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC) }
	pdp, err := NewPDP(resolver, WithClock(clock), WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("pdp: %v", err)
	}
	defer pdp.Close()
	first := pdp.Evaluate(context.Background(), simpleRequest())
	second := pdp.Evaluate(context.Background(), simpleRequest())
	if first.Results[0].Decision != second.Results[0].Decision {
		t.Fatalf("same inputs produced %v then %v", first.Results[0].Decision, second.Results[0].Decision)
	}
}

func TestPDPIssuedEnvironmentAttributesAgree(t *testing.T) {
	// The condition cross-checks current-dateTime against a constant; the
	// snapshot clock makes it deterministic.
	at := time.Date(2026, 8, 6, 9, 30, 0, 0, time.UTC)
	want, _ := ParseValue(DatatypeDateTime, "2026-08-06T09:30:00Z")

	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	cond := mustRawApply(fnPrefix10+"dateTime-equal",
		mustRawApply(fnPrefix10+"dateTime-one-and-only",
			NewAttributeDesignator(AttributeFqn{Category: CategoryEnvironment, ID: AttributeCurrentDateTime},
				PrimitiveType(DatatypeDateTime), true)),
		NewConstant(want))
	p, err := NewPolicyBuilder("root", "1.0").
		Rule(NewRuleBuilder("r", EffectPermit).Condition(cond).Build()).
		CombiningAlg(rover).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	resolver, _ := NewRootPolicyResolver(NewStaticPolicyProvider(p), "root", "")
	pdp, err := NewPDP(resolver,
		WithClock(func() time.Time { return at }),
		WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("pdp: %v", err)
	}
	defer pdp.Close()

	resp := pdp.Evaluate(context.Background(), simpleRequest())
	if resp.Results[0].Decision != Permit {
		t.Fatalf("decision = %v (%v), want Permit from PDP-issued dateTime", resp.Results[0].Decision, resp.Results[0].Status)
	}
}

func TestPDPDeadlineExceeded(t *testing.T) {
	_, resolver := permitRootProvider(t)
	pdp, err := NewPDP(resolver, WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("pdp: %v", err)
	}
	defer pdp.Close()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	resp := pdp.Evaluate(ctx, simpleRequest())
	res := resp.Results[0]
	if res.Decision != Indeterminate {
		t.Fatalf("decision = %v, want Indeterminate", res.Decision)
	}
	if res.Status == nil || res.Status.Code != StatusProcessingError {
		t.Fatalf("status = %+v, want processing-error", res.Status)
	}
}

// mapDecisionCache is a deterministic DecisionCache stub.
type mapDecisionCache struct {
	entries map[string]*DecisionResult
	hits    int
	puts    int
}

func newMapDecisionCache() *mapDecisionCache {
	return &mapDecisionCache{entries: map[string]*DecisionResult{}}
}

func (c *mapDecisionCache) GetAll(reqs []*IndividualDecisionRequest) map[*IndividualDecisionRequest]*DecisionResult {
	out := make(map[*IndividualDecisionRequest]*DecisionResult, len(reqs))
	for _, r := range reqs {
		res := c.entries[r.Fingerprint()]
		if res != nil {
			c.hits++
		}
		out[r] = res
	}
	return out
}

func (c *mapDecisionCache) PutAll(results map[*IndividualDecisionRequest]*DecisionResult) {
	for r, res := range results {
		if res != nil {
			c.entries[r.Fingerprint()] = res
			c.puts++
		}
	}
}

func (c *mapDecisionCache) Invalidate() { c.entries = map[string]*DecisionResult{} }
func (c *mapDecisionCache) Close() error {
	c.entries = nil
	return nil
}

func TestPDPDecisionCache(t *testing.T) {
	_, resolver := permitRootProvider(t)
	cache := newMapDecisionCache()
	pdp, err := NewPDP(resolver, WithDecisionCache(cache), WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("pdp: %v", err)
	}

	if resp := pdp.Evaluate(context.Background(), simpleRequest()); resp.Results[0].Decision != Permit {
		t.Fatalf("first evaluation must permit")
	}
	if cache.puts != 1 {
		t.Fatalf("puts = %d, want 1", cache.puts)
	}
	if resp := pdp.Evaluate(context.Background(), simpleRequest()); resp.Results[0].Decision != Permit {
		t.Fatalf("cached evaluation must permit")
	}
	if cache.hits != 1 {
		t.Fatalf("hits = %d, want 1", cache.hits)
	}
	if cache.puts != 1 {
		t.Fatalf("puts after hit = %d, want 1", cache.puts)
	}

	cache.Invalidate()
	if resp := pdp.Evaluate(context.Background(), simpleRequest()); resp.Results[0].Decision != Permit {
		t.Fatalf("post-invalidation evaluation must permit")
	}
	if cache.puts != 2 {
		t.Fatalf("puts after invalidation = %d, want 2", cache.puts)
	}
	if err := pdp.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRistrettoDecisionCacheRoundTrip(t *testing.T) {
	cache, err := NewRistrettoDecisionCache(RistrettoDecisionCacheConfig{TTL: time.Minute})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	defer cache.Close()

	pre := NewDefaultRequestPreprocessor(caps(true, false))
	individuals, _ := pre.Process(simpleRequest())
	req := individuals[0]

	got := cache.GetAll([]*IndividualDecisionRequest{req})
	if len(got) != 1 {
		t.Fatalf("GetAll must return one entry per input, got %d", len(got))
	}
	if got[req] != nil {
		t.Fatalf("expected a miss")
	}

	cache.PutAll(map[*IndividualDecisionRequest]*DecisionResult{req: simplePermit})
	cache.Wait()
	got = cache.GetAll([]*IndividualDecisionRequest{req})
	if got[req] == nil || got[req].Decision != Permit {
		t.Fatalf("expected a hit with Permit, got %+v", got[req])
	}

	cache.Invalidate()
	got = cache.GetAll([]*IndividualDecisionRequest{req})
	if got[req] != nil {
		t.Fatalf("invalidation must drop entries")
	}
}

func TestPDPEvaluateBatch(t *testing.T) {
	_, resolver := permitRootProvider(t)
	pdp, err := NewPDP(resolver, WithLogger(logger.NewNullLogger()))
	if err != nil {
		t.Fatalf("pdp: %v", err)
	}
	defer pdp.Close()

	other := simpleRequest()
	other.Categories[0].Attributes[0].Values = []*AttributeValue{NewStringValue("mallory")}
	responses := pdp.EvaluateBatch(context.Background(), []*Request{simpleRequest(), other})
	if len(responses) != 2 {
		t.Fatalf("responses = %d", len(responses))
	}
	if responses[0].Results[0].Decision != Permit || responses[1].Results[0].Decision != NotApplicable {
		t.Fatalf("batch = %v/%v", responses[0].Results[0].Decision, responses[1].Results[0].Decision)
	}
}

func TestCombinedDecisionPostprocessor(t *testing.T) {
	post := CombinedDecisionPostprocessor{}
	req := &Request{CombinedDecision: true}
	resp := post.Process(req, nil, []*DecisionResult{simplePermit, simplePermit})
	if len(resp.Results) != 1 || resp.Results[0].Decision != Permit {
		t.Fatalf("agreeing permits must combine, got %+v", resp.Results)
	}
	resp = post.Process(req, nil, []*DecisionResult{simplePermit, simpleDeny})
	if resp.Results[0].Decision != Indeterminate {
		t.Fatalf("disagreement must be Indeterminate, got %v", resp.Results[0].Decision)
	}
	resp = post.Process(req, nil, []*DecisionResult{
		{Decision: Permit, Obligations: []Obligation{{ID: "o"}}},
	})
	if resp.Results[0].Decision != Indeterminate {
		t.Fatalf("obligations must block combining, got %v", resp.Results[0].Decision)
	}
}
