package stores

import (
	"context"
	"testing"

	"github.com/oarkflow/xacml"
)

func TestMemoryPolicyStore(t *testing.T) {
	store := NewMemoryPolicyStore()
	ctx := context.Background()

	if err := store.Put(ctx, &xacml.PolicyDocument{ID: "p", Version: "1.0", Body: []byte("one")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, &xacml.PolicyDocument{ID: "p", Version: "1.5", Body: []byte("two")}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, &xacml.PolicyDocument{ID: "p", Version: ""}); err == nil {
		t.Fatalf("missing version must be rejected")
	}

	latest, err := store.Latest(ctx, "p")
	if err != nil || latest.Version != "1.5" {
		t.Fatalf("latest = %+v, %v", latest, err)
	}
	if _, err := store.Latest(ctx, "nope"); err == nil {
		t.Fatalf("unknown id must fail")
	}

	all, err := store.List(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("list = %d, %v", len(all), err)
	}

	if err := store.Delete(ctx, "p", "1.0"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "p", "1.0"); err == nil {
		t.Fatalf("deleted doc must be gone")
	}
}

// The memory store satisfies the provider-facing interface.
var _ xacml.PolicyDocumentStore = (*MemoryPolicyStore)(nil)
var _ xacml.PolicyDocumentStore = (*SQLPolicyStore)(nil)
var _ xacml.DecisionCache = (*RedisDecisionCache)(nil)
