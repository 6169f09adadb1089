package xacml

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func testBundle(t *testing.T) *PolicyBundle {
	t.Helper()
	return &PolicyBundle{
		Revision: "rev-1",
		Documents: []*PolicyDocument{{
			ID:      "root",
			Version: "1.0",
			Body: []byte(`{"combining_alg": "urn:oasis:names:tc:xacml:3.0:rule-combining-algorithm:deny-unless-permit",
				"rules": [{"id": "r", "effect": "Permit"}]}`),
		}},
	}
}

func TestSignAndVerifyBundle(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	sb, err := SignBundle(priv, testBundle(t))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := VerifyBundle(pub, sb)
	if err != nil || !ok {
		t.Fatalf("verify = %v, %v", ok, err)
	}

	// Tampering breaks the signature.
	sb.Bundle.Documents[0].Body = []byte(`{}`)
	ok, err = VerifyBundle(pub, sb)
	if err != nil || ok {
		t.Fatalf("tampered bundle must not verify, got %v, %v", ok, err)
	}
}

func TestReloadableProviderAppliesAndInvalidates(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	decoder := NewPolicyDefDecoder(StandardFunctionRegistry(), StandardCombiningRegistry(), nil)
	provider := NewReloadablePolicyProvider(pub, decoder.DecodeDocument)

	invalidations := 0
	provider.OnReload(func(string) { invalidations++ })

	if _, err := provider.Get(context.Background(), "root", ""); err == nil {
		t.Fatalf("empty provider must not resolve anything")
	}

	sb, err := SignBundle(priv, testBundle(t))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := provider.Apply(sb); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if invalidations != 1 {
		t.Fatalf("reload hooks = %d, want 1", invalidations)
	}
	if provider.Revision() != "rev-1" {
		t.Fatalf("revision = %q", provider.Revision())
	}

	elem, err := provider.Get(context.Background(), "root", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res := elem.Evaluate(testCtx()); res.Decision != Permit {
		t.Fatalf("decision = %v", res.Decision)
	}

	// A wrongly-signed bundle is refused and the active bundle stays.
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	bad, _ := SignBundle(otherPriv, &PolicyBundle{Revision: "rev-2", Documents: testBundle(t).Documents})
	if err := provider.Apply(bad); err == nil {
		t.Fatalf("bad signature must be refused")
	}
	if provider.Revision() != "rev-1" {
		t.Fatalf("failed apply must not change the active revision")
	}
}
