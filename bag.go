package xacml

import "strings"

// Bag is an unordered multiset of values of a single primitive datatype.
// An empty bag may carry a cause explaining why it is empty (for example a
// failed attribute provider); the cause is surfaced only when a later
// operation requires a non-empty result.
type Bag struct {
	elem  Datatype
	vals  []*AttributeValue
	cause *IndeterminateError
}

func NewBag(element Datatype, vals ...*AttributeValue) *Bag {
	return &Bag{elem: element, vals: vals}
}

func NewEmptyBag(element Datatype) *Bag { return &Bag{elem: element} }

func emptyBagWithCause(element Datatype, cause *IndeterminateError) *Bag {
	return &Bag{elem: element, cause: cause}
}

// ElementType is the datatype of the bag's elements.
func (b *Bag) ElementType() Datatype { return b.elem }

// Type is the bag datatype itself.
func (b *Bag) Type() Datatype { return BagType(b.elem.ID) }

func (b *Bag) Size() int { return len(b.vals) }

func (b *Bag) IsEmpty() bool { return len(b.vals) == 0 }

// Values returns the backing slice. Callers must not mutate it.
func (b *Bag) Values() []*AttributeValue { return b.vals }

// Cause is the reason an empty bag is empty, or nil.
func (b *Bag) Cause() *IndeterminateError { return b.cause }

func (b *Bag) Contains(v *AttributeValue) bool {
	for _, x := range b.vals {
		if x.Equal(v) {
			return true
		}
	}
	return false
}

// Single returns the only element of a singleton bag. For any other bag it
// returns the bag's cause when one is set (e.g. missing-attribute for an
// empty designator result), and otherwise a processing error.
func (b *Bag) Single() (*AttributeValue, error) {
	if len(b.vals) == 1 {
		return b.vals[0], nil
	}
	if b.cause != nil {
		return nil, b.cause
	}
	return nil, newIndeterminate(StatusProcessingError, "expected singleton bag of %s, got %d values", b.elem, len(b.vals))
}

// Equal compares two bags as multisets.
func (b *Bag) Equal(other *Bag) bool {
	if b.elem != other.elem || len(b.vals) != len(other.vals) {
		return false
	}
	counts := make(map[string]int, len(b.vals))
	for _, v := range b.vals {
		counts[v.lex]++
	}
	for _, v := range other.vals {
		counts[v.lex]--
		if counts[v.lex] < 0 {
			return false
		}
	}
	return true
}

func (b *Bag) String() string {
	var sb strings.Builder
	sb.WriteString("bag[")
	sb.WriteString(b.elem.String())
	sb.WriteString("]{")
	for i, v := range b.vals {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(v.lex)
	}
	sb.WriteByte('}')
	return sb.String()
}
