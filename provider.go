package xacml

import (
	"context"
	"fmt"
)

// AttributeDesignatorType declares one designator shape an attribute
// provider can serve. Empty Issuer matches designators with any issuer;
// empty DatatypeID matches any datatype.
type AttributeDesignatorType struct {
	Category   string
	ID         string
	Issuer     string
	DatatypeID string
}

func (t AttributeDesignatorType) covers(fqn AttributeFqn, elementType Datatype) bool {
	if t.Category != fqn.Category || t.ID != fqn.ID {
		return false
	}
	if t.Issuer != "" && fqn.Issuer != "" && t.Issuer != fqn.Issuer {
		return false
	}
	return t.DatatypeID == "" || t.DatatypeID == elementType.ID
}

// AttributeProvider is a PIP: it serves attribute bags the request did not
// carry. GetAttribute blocks on the calling goroutine and must respect the
// context deadline; a timeout is reported back as a missing attribute.
type AttributeProvider interface {
	ID() string
	ProvidedAttributes() []AttributeDesignatorType
	GetAttribute(ctx context.Context, fqn AttributeFqn, elementType Datatype) (*Bag, error)
	Close() error
}

// AttributeDependent is implemented by providers that need attributes served
// by other providers. The registry orders initialization accordingly and
// rejects dependency cycles.
type AttributeDependent interface {
	RequiredAttributes() []AttributeDesignatorType
}

// AttributeProviderRegistry dispatches designator lookups to providers whose
// declared attributes cover the request, in registration order; the first
// non-empty bag wins.
type AttributeProviderRegistry struct {
	providers []AttributeProvider
}

func NewAttributeProviderRegistry(providers ...AttributeProvider) (*AttributeProviderRegistry, error) {
	if err := checkProviderDependencies(providers); err != nil {
		return nil, err
	}
	return &AttributeProviderRegistry{providers: providers}, nil
}

// checkProviderDependencies verifies that every required attribute is served
// by some provider and that the serves/requires graph is acyclic.
func checkProviderDependencies(providers []AttributeProvider) error {
	serves := make(map[string][]int)
	key := func(t AttributeDesignatorType) string { return t.Category + "|" + t.ID }
	for i, p := range providers {
		for _, t := range p.ProvidedAttributes() {
			serves[key(t)] = append(serves[key(t)], i)
		}
	}
	// adjacency: i depends on j when j serves an attribute i requires
	deps := make([][]int, len(providers))
	for i, p := range providers {
		dep, ok := p.(AttributeDependent)
		if !ok {
			continue
		}
		for _, req := range dep.RequiredAttributes() {
			servers, found := serves[key(req)]
			if !found {
				return fmt.Errorf("attribute provider %q requires %s|%s served by no provider",
					p.ID(), req.Category, req.ID)
			}
			deps[i] = append(deps[i], servers...)
		}
	}
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(providers))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visiting:
			return fmt.Errorf("attribute provider dependency cycle involving %q", providers[i].ID())
		case done:
			return nil
		}
		state[i] = visiting
		for _, j := range deps[i] {
			if j == i {
				continue
			}
			if err := visit(j); err != nil {
				return err
			}
		}
		state[i] = done
		return nil
	}
	for i := range providers {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}

func (r *AttributeProviderRegistry) resolve(ctx *EvaluationContext, fqn AttributeFqn, elementType Datatype) (*Bag, error) {
	for _, p := range r.providers {
		if !providerCovers(p, fqn, elementType) {
			continue
		}
		bag, err := p.GetAttribute(ctx.Context(), fqn, elementType)
		if err != nil {
			return nil, wrapIndeterminate(err, StatusMissingAttribute,
				"attribute provider %q failed for %s", p.ID(), fqn)
		}
		if bag != nil && !bag.IsEmpty() {
			if bag.ElementType() != elementType {
				return nil, newIndeterminate(StatusProcessingError,
					"attribute provider %q returned %s bag for %s designator", p.ID(), bag.ElementType(), elementType)
			}
			return bag, nil
		}
	}
	return nil, nil
}

func providerCovers(p AttributeProvider, fqn AttributeFqn, elementType Datatype) bool {
	for _, t := range p.ProvidedAttributes() {
		if t.covers(fqn, elementType) {
			return true
		}
	}
	return false
}

// Close shuts down every registered provider, keeping the first error.
func (r *AttributeProviderRegistry) Close() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
