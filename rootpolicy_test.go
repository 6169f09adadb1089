package xacml

import (
	"context"
	"testing"
)

// chainProvider builds ps-0 -> ps-1 -> ... -> ps-(n-1) -> leaf policy via
// references, all resolved dynamically.
func chainProvider(t *testing.T, depth int) *StaticPolicyProvider {
	t.Helper()
	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	pover, _ := reg.Lookup(PolicyCombPrefix30 + "permit-overrides")

	provider := NewStaticPolicyProvider()
	leaf, err := NewPolicyBuilder("leaf", "1.0").
		Rule(NewRuleBuilder("r", EffectPermit).Build()).
		CombiningAlg(rover).
		Build()
	if err != nil {
		t.Fatalf("leaf: %v", err)
	}
	provider.Add(leaf)
	for i := depth - 1; i >= 0; i-- {
		childID := "leaf"
		if i < depth-1 {
			childID = psID(i + 1)
		}
		ps, err := NewPolicySetBuilder(psID(i), "1.0").
			Reference(NewPolicyReference(childID, "", provider)).
			CombiningAlg(pover).
			Build()
		if err != nil {
			t.Fatalf("ps-%d: %v", i, err)
		}
		provider.Add(ps)
	}
	return provider
}

func psID(i int) string { return "ps-" + string(rune('0'+i)) }

func TestPolicyReferenceChainWithinLimit(t *testing.T) {
	provider := chainProvider(t, 3)
	ctx := testCtx()
	ctx.maxRefDepth = 5
	resolver, _ := NewRootPolicyResolver(provider, psID(0), "")
	res := resolver.FindAndEvaluate(ctx)
	if res.Decision != Permit {
		t.Fatalf("decision = %v (%v), want Permit", res.Decision, res.Status)
	}
}

func TestPolicyReferenceDepthExceeded(t *testing.T) {
	provider := chainProvider(t, 4)
	ctx := testCtx()
	ctx.maxRefDepth = 3
	resolver, _ := NewRootPolicyResolver(provider, psID(0), "")
	res := resolver.FindAndEvaluate(ctx)
	if res.Decision != Indeterminate {
		t.Fatalf("decision = %v, want Indeterminate", res.Decision)
	}
	if res.Status == nil || res.Status.Code != StatusProcessingError {
		t.Fatalf("status = %+v, want processing-error", res.Status)
	}
}

func TestPolicyReferenceCycleDetected(t *testing.T) {
	reg := StandardCombiningRegistry()
	pover, _ := reg.Lookup(PolicyCombPrefix30 + "permit-overrides")
	provider := NewStaticPolicyProvider()

	a, err := NewPolicySetBuilder("cycle-a", "1.0").
		Reference(NewPolicyReference("cycle-b", "", provider)).
		CombiningAlg(pover).
		Build()
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	b, err := NewPolicySetBuilder("cycle-b", "1.0").
		Reference(NewPolicyReference("cycle-a", "", provider)).
		CombiningAlg(pover).
		Build()
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	provider.Add(a)
	provider.Add(b)

	resolver, _ := NewRootPolicyResolver(provider, "cycle-a", "")
	ctx := testCtx()
	ctx.maxRefDepth = 50
	res := resolver.FindAndEvaluate(ctx)
	if res.Decision != Indeterminate {
		t.Fatalf("cycle must be Indeterminate, got %v", res.Decision)
	}
}

// stubDocumentStore serves canned documents and counts reads.
type stubDocumentStore struct {
	docs  map[string]*PolicyDocument
	reads int
}

func (s *stubDocumentStore) Put(_ context.Context, doc *PolicyDocument) error {
	s.docs[doc.ID] = doc
	return nil
}

func (s *stubDocumentStore) Get(_ context.Context, id, _ string) (*PolicyDocument, error) {
	return s.Latest(nil, id)
}

func (s *stubDocumentStore) Latest(_ context.Context, id string) (*PolicyDocument, error) {
	s.reads++
	doc, ok := s.docs[id]
	if !ok {
		return nil, newIndeterminate(StatusProcessingError, "no document %q", id)
	}
	return doc, nil
}

func (s *stubDocumentStore) List(_ context.Context) ([]*PolicyDocument, error) { return nil, nil }

func (s *stubDocumentStore) Delete(_ context.Context, id, _ string) error {
	delete(s.docs, id)
	return nil
}

func (s *stubDocumentStore) Close() error { return nil }

func TestStorePolicyProviderMemoizesAndInvalidates(t *testing.T) {
	store := &stubDocumentStore{docs: map[string]*PolicyDocument{
		"root": {ID: "root", Version: "1.0", Body: []byte(`{"combining_alg": "urn:oasis:names:tc:xacml:3.0:rule-combining-algorithm:deny-unless-permit",
			"rules": [{"id": "r", "effect": "Permit"}]}`)},
	}}
	decoder := NewPolicyDefDecoder(StandardFunctionRegistry(), StandardCombiningRegistry(), nil)
	provider := NewStorePolicyProvider(store, decoder.DecodeDocument)

	if _, err := provider.Get(context.Background(), "root", ""); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := provider.Get(context.Background(), "root", ""); err != nil {
		t.Fatalf("get again: %v", err)
	}
	if store.reads != 1 {
		t.Fatalf("reads = %d, want 1 (memoized)", store.reads)
	}

	provider.Invalidate()
	if _, err := provider.Get(context.Background(), "root", ""); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if store.reads != 2 {
		t.Fatalf("reads = %d, want 2 after invalidation", store.reads)
	}
}

func TestStaticProviderVersionSelection(t *testing.T) {
	reg := StandardCombiningRegistry()
	rover, _ := reg.Lookup(RuleCombPrefix30 + "permit-overrides")
	mk := func(version string, effect Effect) *Policy {
		p, err := NewPolicyBuilder("versioned", version).
			Rule(NewRuleBuilder("r", effect).Build()).
			CombiningAlg(rover).
			Build()
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		return p
	}
	provider := NewStaticPolicyProvider(mk("1.0", EffectDeny), mk("2.0", EffectPermit))

	elem, err := provider.Get(context.Background(), "versioned", "1.0")
	if err != nil {
		t.Fatalf("get pinned: %v", err)
	}
	if res := elem.Evaluate(testCtx()); res.Decision != Deny {
		t.Fatalf("pinned 1.0 must deny, got %v", res.Decision)
	}

	elem, err = provider.Get(context.Background(), "versioned", "")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if res := elem.Evaluate(testCtx()); res.Decision != Permit {
		t.Fatalf("latest must permit, got %v", res.Decision)
	}

	if _, err := provider.Get(context.Background(), "missing", ""); err == nil {
		t.Fatalf("unknown id must fail")
	}
}
