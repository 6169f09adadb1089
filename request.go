package xacml

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Standard attribute categories and the PDP-issued environment attribute
// identifiers (core spec 10.2.5, B.4, B.7).
const (
	CategorySubject     = "urn:oasis:names:tc:xacml:1.0:subject-category:access-subject"
	CategoryResource    = "urn:oasis:names:tc:xacml:3.0:attribute-category:resource"
	CategoryAction      = "urn:oasis:names:tc:xacml:3.0:attribute-category:action"
	CategoryEnvironment = "urn:oasis:names:tc:xacml:3.0:attribute-category:environment"

	AttributeCurrentTime     = "urn:oasis:names:tc:xacml:1.0:environment:current-time"
	AttributeCurrentDate     = "urn:oasis:names:tc:xacml:1.0:environment:current-date"
	AttributeCurrentDateTime = "urn:oasis:names:tc:xacml:1.0:environment:current-dateTime"
)

// RequestAttribute is one attribute of a request category.
type RequestAttribute struct {
	ID              string            `json:"id"`
	Issuer          string            `json:"issuer,omitempty"`
	Values          []*AttributeValue `json:"values"`
	IncludeInResult bool              `json:"include_in_result,omitempty"`
}

// RequestCategory is one Attributes block of a request. The same category
// may appear more than once; the Multiple Decision preprocessor fans the
// request out across repeats.
type RequestCategory struct {
	Category   string             `json:"category"`
	ID         string             `json:"id,omitempty"`
	Content    *xmlquery.Node     `json:"-"`
	Attributes []RequestAttribute `json:"attributes"`
}

// Request is the abstract decision request handed to the PDP; wire parsing
// into this shape is the embedder's concern.
type Request struct {
	ReturnPolicyIdList bool              `json:"return_policy_id_list,omitempty"`
	CombinedDecision   bool              `json:"combined_decision,omitempty"`
	Categories         []RequestCategory `json:"categories"`
}

// IndividualDecisionRequest is one unit of evaluation after preprocessing.
type IndividualDecisionRequest struct {
	named              map[AttributeFqn]*Bag
	contents           map[string]*xmlquery.Node
	echoed             []RequestCategory
	returnPolicyIdList bool

	fingerprint string
}

// Named is the request's attribute bags keyed by fully-qualified name.
func (r *IndividualDecisionRequest) Named() map[AttributeFqn]*Bag { return r.named }

// Echoed is the categories/attributes flagged IncludeInResult, to be echoed
// into the Result.
func (r *IndividualDecisionRequest) Echoed() []RequestCategory { return r.echoed }

// Fingerprint is a stable hash over the request's attribute content, usable
// as a decision-cache key: sorted (category, id, issuer, datatype, sorted
// values) tuples plus the evaluation-relevant flags.
func (r *IndividualDecisionRequest) Fingerprint() string {
	if r.fingerprint != "" {
		return r.fingerprint
	}
	lines := make([]string, 0, len(r.named))
	for fqn, bag := range r.named {
		vals := make([]string, 0, bag.Size())
		for _, v := range bag.Values() {
			vals = append(vals, v.Lexical())
		}
		sort.Strings(vals)
		lines = append(lines, fqn.Category+"\x00"+fqn.ID+"\x00"+fqn.Issuer+"\x00"+
			bag.ElementType().ID+"\x00"+strings.Join(vals, "\x01"))
	}
	sort.Strings(lines)
	h := sha256.New()
	if r.returnPolicyIdList {
		h.Write([]byte{1})
	}
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	r.fingerprint = hex.EncodeToString(h.Sum(nil))
	return r.fingerprint
}

// RequestPreprocessor splits a Request into individual decision requests and
// validates the request-wide flags against engine capabilities.
type RequestPreprocessor interface {
	Process(req *Request) ([]*IndividualDecisionRequest, error)
}

// PreprocessorCapabilities describes what the surrounding engine supports,
// so preprocessing can reject what the pipeline cannot honour.
type PreprocessorCapabilities struct {
	PolicyIdListSupported     bool
	CombinedDecisionSupported bool
}

// DefaultRequestPreprocessor maps one Request to one individual decision
// request.
type DefaultRequestPreprocessor struct {
	caps PreprocessorCapabilities
}

func NewDefaultRequestPreprocessor(caps PreprocessorCapabilities) *DefaultRequestPreprocessor {
	return &DefaultRequestPreprocessor{caps: caps}
}

func (p *DefaultRequestPreprocessor) Process(req *Request) ([]*IndividualDecisionRequest, error) {
	if err := validateRequestFlags(req, p.caps); err != nil {
		return nil, err
	}
	if err := rejectRepeatedCategories(req); err != nil {
		return nil, err
	}
	individual, err := buildIndividualRequest(req, req.Categories)
	if err != nil {
		return nil, err
	}
	return []*IndividualDecisionRequest{individual}, nil
}

// MultipleDecisionPreprocessor implements the repeated-attribute-categories
// variant of the Multiple Decision Profile: one individual request per
// combination of the repeated categories, in document order.
type MultipleDecisionPreprocessor struct {
	caps PreprocessorCapabilities
}

func NewMultipleDecisionPreprocessor(caps PreprocessorCapabilities) *MultipleDecisionPreprocessor {
	return &MultipleDecisionPreprocessor{caps: caps}
}

func (p *MultipleDecisionPreprocessor) Process(req *Request) ([]*IndividualDecisionRequest, error) {
	if err := validateRequestFlags(req, p.caps); err != nil {
		return nil, err
	}
	// Group category blocks by category URI, preserving first-seen order.
	order := make([]string, 0, len(req.Categories))
	groups := make(map[string][]RequestCategory)
	for _, cat := range req.Categories {
		if _, seen := groups[cat.Category]; !seen {
			order = append(order, cat.Category)
		}
		groups[cat.Category] = append(groups[cat.Category], cat)
	}

	combos := [][]RequestCategory{{}}
	for _, category := range order {
		blocks := groups[category]
		next := make([][]RequestCategory, 0, len(combos)*len(blocks))
		for _, combo := range combos {
			for _, block := range blocks {
				ext := make([]RequestCategory, len(combo), len(combo)+1)
				copy(ext, combo)
				next = append(next, append(ext, block))
			}
		}
		combos = next
	}

	out := make([]*IndividualDecisionRequest, 0, len(combos))
	for _, combo := range combos {
		individual, err := buildIndividualRequest(req, combo)
		if err != nil {
			return nil, err
		}
		out = append(out, individual)
	}
	return out, nil
}

func validateRequestFlags(req *Request, caps PreprocessorCapabilities) error {
	if req.ReturnPolicyIdList && !caps.PolicyIdListSupported {
		return newIndeterminate(StatusSyntaxError, "ReturnPolicyIdList is not supported by this PDP")
	}
	if req.CombinedDecision && !caps.CombinedDecisionSupported {
		return newIndeterminate(StatusSyntaxError, "CombinedDecision is not supported by this PDP")
	}
	return nil
}

func rejectRepeatedCategories(req *Request) error {
	seen := make(map[string]bool, len(req.Categories))
	for _, cat := range req.Categories {
		if seen[cat.Category] {
			return newIndeterminate(StatusSyntaxError,
				"category %q appears more than once; enable the Multiple Decision preprocessor", cat.Category)
		}
		seen[cat.Category] = true
	}
	return nil
}

// buildIndividualRequest flattens category blocks into attribute bags.
// Repeats of the same (category, id, issuer) within one block merge into a
// single bag (core spec 7.3.3); values of one attribute must share one
// datatype.
func buildIndividualRequest(req *Request, categories []RequestCategory) (*IndividualDecisionRequest, error) {
	named := make(map[AttributeFqn]*Bag)
	var contents map[string]*xmlquery.Node
	var echoed []RequestCategory

	for _, cat := range categories {
		if cat.Content != nil {
			if contents == nil {
				contents = make(map[string]*xmlquery.Node)
			}
			contents[cat.Category] = cat.Content
		}
		var echoAttrs []RequestAttribute
		for _, attr := range cat.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			elem := attr.Values[0].Datatype()
			for _, v := range attr.Values {
				if v.Datatype() != elem {
					return nil, newIndeterminate(StatusSyntaxError,
						"attribute %q in category %q mixes datatypes %s and %s",
						attr.ID, cat.Category, elem, v.Datatype())
				}
			}
			fqn := AttributeFqn{Category: cat.Category, ID: attr.ID, Issuer: attr.Issuer}
			if existing, ok := named[fqn]; ok {
				if existing.ElementType() != elem {
					return nil, newIndeterminate(StatusSyntaxError,
						"attribute %s repeats with datatypes %s and %s", fqn, existing.ElementType(), elem)
				}
				vals := append(append([]*AttributeValue{}, existing.Values()...), attr.Values...)
				named[fqn] = NewBag(elem, vals...)
			} else {
				named[fqn] = NewBag(elem, attr.Values...)
			}
			if attr.IncludeInResult {
				echoAttrs = append(echoAttrs, attr)
			}
		}
		if len(echoAttrs) > 0 {
			echoed = append(echoed, RequestCategory{Category: cat.Category, ID: cat.ID, Attributes: echoAttrs})
		}
	}
	return &IndividualDecisionRequest{
		named:              named,
		contents:           contents,
		echoed:             echoed,
		returnPolicyIdList: req.ReturnPolicyIdList,
	}, nil
}
