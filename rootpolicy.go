package xacml

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PolicyProvider resolves (id, version) pairs to parsed policy elements.
// Resolution must be deterministic for a given pair. An empty version means
// "latest".
type PolicyProvider interface {
	Get(ctx context.Context, id, version string) (PolicyElement, error)
	Close() error
}

// StaticPolicyProvider serves a fixed, pre-resolved set of policy elements.
type StaticPolicyProvider struct {
	byID map[string]map[string]PolicyElement // id -> version -> element
}

func NewStaticPolicyProvider(elements ...PolicyElement) *StaticPolicyProvider {
	p := &StaticPolicyProvider{byID: make(map[string]map[string]PolicyElement)}
	for _, e := range elements {
		p.Add(e)
	}
	return p
}

// Add registers one more element. Static providers are filled before any
// evaluation starts; Add is not safe once the provider is shared.
func (p *StaticPolicyProvider) Add(e PolicyElement) {
	ref := e.Ref()
	versions, ok := p.byID[ref.ID]
	if !ok {
		versions = make(map[string]PolicyElement)
		p.byID[ref.ID] = versions
	}
	versions[ref.Version] = e
}

func (p *StaticPolicyProvider) Get(_ context.Context, id, version string) (PolicyElement, error) {
	versions, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("no policy %q", id)
	}
	if version != "" {
		e, found := versions[version]
		if !found {
			return nil, fmt.Errorf("no policy %q version %q", id, version)
		}
		return e, nil
	}
	var best PolicyElement
	var bestVersion string
	for v, e := range versions {
		if best == nil || v > bestVersion {
			best, bestVersion = e, v
		}
	}
	return best, nil
}

func (p *StaticPolicyProvider) Close() error { return nil }

// PolicyDocument is a persisted, serialized policy: the abstract repository
// shape the resolver needs. The body encoding is the embedder's concern.
type PolicyDocument struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Body      []byte    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyDocumentStore persists policy documents, versioned by (id, version).
type PolicyDocumentStore interface {
	Put(ctx context.Context, doc *PolicyDocument) error
	Get(ctx context.Context, id, version string) (*PolicyDocument, error)
	Latest(ctx context.Context, id string) (*PolicyDocument, error)
	List(ctx context.Context) ([]*PolicyDocument, error)
	Delete(ctx context.Context, id, version string) error
	Close() error
}

// PolicyDecoder turns a stored document into a parsed policy element.
type PolicyDecoder func(doc *PolicyDocument) (PolicyElement, error)

// StorePolicyProvider resolves references from a document store, decoding
// and memoizing per (id, version). The memo is dropped on Invalidate so a
// changed store never serves stale trees.
type StorePolicyProvider struct {
	store  PolicyDocumentStore
	decode PolicyDecoder

	mu    sync.RWMutex
	cache map[PolicyRef]PolicyElement
}

func NewStorePolicyProvider(store PolicyDocumentStore, decode PolicyDecoder) *StorePolicyProvider {
	return &StorePolicyProvider{
		store:  store,
		decode: decode,
		cache:  make(map[PolicyRef]PolicyElement),
	}
}

func (p *StorePolicyProvider) Get(ctx context.Context, id, version string) (PolicyElement, error) {
	key := PolicyRef{ID: id, Version: version}
	p.mu.RLock()
	cached, hit := p.cache[key]
	p.mu.RUnlock()
	if hit {
		return cached, nil
	}
	var doc *PolicyDocument
	var err error
	if version == "" {
		doc, err = p.store.Latest(ctx, id)
	} else {
		doc, err = p.store.Get(ctx, id, version)
	}
	if err != nil {
		return nil, err
	}
	elem, err := p.decode(doc)
	if err != nil {
		return nil, fmt.Errorf("decode policy %q version %q: %w", id, version, err)
	}
	p.mu.Lock()
	p.cache[key] = elem
	p.mu.Unlock()
	return elem, nil
}

// Invalidate drops all memoized policy trees.
func (p *StorePolicyProvider) Invalidate() {
	p.mu.Lock()
	p.cache = make(map[PolicyRef]PolicyElement)
	p.mu.Unlock()
}

func (p *StorePolicyProvider) Close() error { return p.store.Close() }

// PolicyReference is a PolicyIdReference or PolicySetIdReference child of a
// policy set, resolved through a provider at evaluation time. The evaluation
// context bounds the reference depth and rejects cycles along the current
// path.
type PolicyReference struct {
	id       string
	version  string
	provider PolicyProvider
}

func NewPolicyReference(id, version string, provider PolicyProvider) *PolicyReference {
	return &PolicyReference{id: id, version: version, provider: provider}
}

func (r *PolicyReference) Ref() PolicyRef { return PolicyRef{ID: r.id, Version: r.version} }

func (r *PolicyReference) resolve(ctx *EvaluationContext) (PolicyElement, *IndeterminateError) {
	elem, err := r.provider.Get(ctx.Context(), r.id, r.version)
	if err != nil {
		return nil, wrapIndeterminate(err, StatusProcessingError, "cannot resolve policy reference %q", r.id)
	}
	return elem, nil
}

func (r *PolicyReference) MatchTarget(ctx *EvaluationContext) (bool, error) {
	if err := ctx.enterPolicyRef(r.id); err != nil {
		return false, err
	}
	defer ctx.leavePolicyRef()
	elem, err := r.resolve(ctx)
	if err != nil {
		return false, err
	}
	return elem.MatchTarget(ctx)
}

func (r *PolicyReference) Evaluate(ctx *EvaluationContext) *DecisionResult {
	if err := ctx.enterPolicyRef(r.id); err != nil {
		return newIndeterminateResult(ExtendedPermitDeny, err)
	}
	defer ctx.leavePolicyRef()
	elem, err := r.resolve(ctx)
	if err != nil {
		return newIndeterminateResult(ExtendedPermitDeny, err)
	}
	return elem.Evaluate(ctx)
}

// RootPolicyResolver locates the configured top-level policy and evaluates
// it for each individual decision request.
type RootPolicyResolver struct {
	provider    PolicyProvider
	rootID      string
	rootVersion string
}

func NewRootPolicyResolver(provider PolicyProvider, rootID, rootVersion string) (*RootPolicyResolver, error) {
	if provider == nil {
		return nil, fmt.Errorf("root policy resolver requires a policy provider")
	}
	if rootID == "" {
		return nil, fmt.Errorf("root policy resolver requires a root policy id")
	}
	return &RootPolicyResolver{provider: provider, rootID: rootID, rootVersion: rootVersion}, nil
}

// FindAndEvaluate resolves the root policy and evaluates it in ctx. A
// resolution failure is an Indeterminate result, never a Go error.
func (r *RootPolicyResolver) FindAndEvaluate(ctx *EvaluationContext) *DecisionResult {
	root, err := r.provider.Get(ctx.Context(), r.rootID, r.rootVersion)
	if err != nil {
		return newIndeterminateResult(ExtendedPermitDeny,
			wrapIndeterminate(err, StatusProcessingError, "cannot resolve root policy %q", r.rootID))
	}
	return root.Evaluate(ctx)
}

func (r *RootPolicyResolver) Close() error { return r.provider.Close() }
