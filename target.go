package xacml

import "fmt"

// Match applies a MatchId function to a literal value and each element
// produced by a designator or selector; it is true when any element matches
// (core spec 7.6).
type Match struct {
	fn      FirstOrderFunction
	literal *AttributeValue
	source  Expression
}

// NewMatch validates the MatchId function against the literal and the
// source's element type: the function must be boolean with two parameters,
// the first taking the literal and the second the bag element.
func NewMatch(matchFn Function, literal *AttributeValue, source Expression) (*Match, error) {
	fof, ok := matchFn.(FirstOrderFunction)
	if !ok {
		return nil, fmt.Errorf("MatchId %s is not a first-order function", matchFn.ID())
	}
	if fof.ReturnType() != PrimitiveType(DatatypeBoolean) {
		return nil, fmt.Errorf("MatchId %s must return boolean", matchFn.ID())
	}
	params := fof.Params()
	if len(params) != 2 {
		return nil, fmt.Errorf("MatchId %s must take exactly two parameters", matchFn.ID())
	}
	if params[0] != literal.Datatype() {
		return nil, fmt.Errorf("MatchId %s first parameter is %s, literal is %s",
			matchFn.ID(), params[0], literal.Datatype())
	}
	src := source.ReturnType()
	if !src.IsBag {
		return nil, fmt.Errorf("Match source %s must be a designator or selector", source)
	}
	if PrimitiveType(src.Element) != params[1] {
		return nil, fmt.Errorf("MatchId %s second parameter is %s, source elements are %s",
			matchFn.ID(), params[1], src.Element)
	}
	return &Match{fn: fof, literal: literal, source: source}, nil
}

func (m *Match) evaluate(ctx *EvaluationContext) (bool, error) {
	raw, err := m.source.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	bag := raw.(*Bag)
	var firstErr error
	for _, elem := range bag.Values() {
		res, invErr := m.fn.Invoke(ctx, []any{m.literal, elem})
		if invErr != nil {
			if firstErr == nil {
				firstErr = invErr
			}
			continue
		}
		if argValue(res).Bool() {
			return true, nil
		}
	}
	if firstErr != nil {
		return false, asIndeterminate(firstErr)
	}
	return false, nil
}

// AllOf is the conjunction of its Matches.
type AllOf struct {
	Matches []*Match
}

// evaluate is AND with 7.11 propagation: any false decides false even past
// an Indeterminate.
func (a *AllOf) evaluate(ctx *EvaluationContext) (bool, error) {
	var firstErr error
	for _, m := range a.Matches {
		ok, err := m.evaluate(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			return false, nil
		}
	}
	if firstErr != nil {
		return false, asIndeterminate(firstErr)
	}
	return true, nil
}

// AnyOf is the disjunction of its AllOfs.
type AnyOf struct {
	AllOfs []*AllOf
}

// evaluate is OR with 7.11 propagation: any true decides true even past an
// Indeterminate.
func (a *AnyOf) evaluate(ctx *EvaluationContext) (bool, error) {
	var firstErr error
	for _, ao := range a.AllOfs {
		ok, err := ao.evaluate(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	if firstErr != nil {
		return false, asIndeterminate(firstErr)
	}
	return false, nil
}

// Target is the conjunction of its AnyOfs. A nil or empty Target matches
// every request.
type Target struct {
	AnyOfs []*AnyOf
}

func NewTarget(anyOfs ...*AnyOf) *Target { return &Target{AnyOfs: anyOfs} }

func (t *Target) Evaluate(ctx *EvaluationContext) (bool, error) {
	if t == nil || len(t.AnyOfs) == 0 {
		return true, nil
	}
	var firstErr error
	for _, ao := range t.AnyOfs {
		ok, err := ao.evaluate(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			return false, nil
		}
	}
	if firstErr != nil {
		return false, asIndeterminate(firstErr)
	}
	return true, nil
}
