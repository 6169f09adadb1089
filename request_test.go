package xacml

import "testing"

func caps(policyIDList, combined bool) PreprocessorCapabilities {
	return PreprocessorCapabilities{PolicyIdListSupported: policyIDList, CombinedDecisionSupported: combined}
}

func simpleRequest() *Request {
	return &Request{
		Categories: []RequestCategory{
			{
				Category: CategorySubject,
				Attributes: []RequestAttribute{
					{ID: subjectID, Values: []*AttributeValue{NewStringValue("alice")}},
				},
			},
			{
				Category: CategoryResource,
				Attributes: []RequestAttribute{
					{ID: "urn:example:resource-id", Values: []*AttributeValue{NewStringValue("doc-1")}},
				},
			},
		},
	}
}

func TestDefaultPreprocessorOneToOne(t *testing.T) {
	pre := NewDefaultRequestPreprocessor(caps(true, false))
	individuals, err := pre.Process(simpleRequest())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(individuals) != 1 {
		t.Fatalf("individuals = %d, want 1", len(individuals))
	}
	bag := individuals[0].Named()[AttributeFqn{Category: CategorySubject, ID: subjectID}]
	if bag == nil || bag.Size() != 1 {
		t.Fatalf("subject-id bag = %v", bag)
	}
}

func TestDefaultPreprocessorRejectsRepeatedCategory(t *testing.T) {
	req := simpleRequest()
	req.Categories = append(req.Categories, RequestCategory{
		Category: CategoryResource,
		Attributes: []RequestAttribute{
			{ID: "urn:example:resource-id", Values: []*AttributeValue{NewStringValue("doc-2")}},
		},
	})
	pre := NewDefaultRequestPreprocessor(caps(true, false))
	if _, err := pre.Process(req); err == nil {
		t.Fatalf("repeated category must be rejected by the one-to-one preprocessor")
	}
}

func TestUnsupportedFlagsRejectedBeforeEvaluation(t *testing.T) {
	req := simpleRequest()
	req.ReturnPolicyIdList = true
	pre := NewDefaultRequestPreprocessor(caps(false, false))
	_, err := pre.Process(req)
	if err == nil {
		t.Fatalf("ReturnPolicyIdList without support must be rejected")
	}
	if ie := asIndeterminate(err); ie.StatusCode != StatusSyntaxError {
		t.Fatalf("status = %s, want syntax-error", ie.StatusCode)
	}

	req = simpleRequest()
	req.CombinedDecision = true
	if _, err := pre.Process(req); err == nil {
		t.Fatalf("CombinedDecision without support must be rejected")
	}
}

func TestMultipleDecisionFanOut(t *testing.T) {
	req := simpleRequest()
	// Two more resource blocks: 3 resources x 1 subject = 3 individuals.
	req.Categories = append(req.Categories,
		RequestCategory{Category: CategoryResource, Attributes: []RequestAttribute{
			{ID: "urn:example:resource-id", Values: []*AttributeValue{NewStringValue("doc-2")}},
		}},
		RequestCategory{Category: CategoryResource, Attributes: []RequestAttribute{
			{ID: "urn:example:resource-id", Values: []*AttributeValue{NewStringValue("doc-3")}},
		}},
	)
	pre := NewMultipleDecisionPreprocessor(caps(true, false))
	individuals, err := pre.Process(req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(individuals) != 3 {
		t.Fatalf("individuals = %d, want 3", len(individuals))
	}
	fqn := AttributeFqn{Category: CategoryResource, ID: "urn:example:resource-id"}
	for i, want := range []string{"doc-1", "doc-2", "doc-3"} {
		bag := individuals[i].Named()[fqn]
		if bag == nil || bag.Size() != 1 || bag.Values()[0].Str() != want {
			t.Fatalf("individual %d resource = %v, want %s (document order)", i, bag, want)
		}
	}
}

func TestSameAttributeMergesIntoOneBag(t *testing.T) {
	req := &Request{
		Categories: []RequestCategory{{
			Category: CategorySubject,
			Attributes: []RequestAttribute{
				{ID: "urn:example:group", Values: []*AttributeValue{NewStringValue("dev")}},
				{ID: "urn:example:group", Values: []*AttributeValue{NewStringValue("ops")}},
			},
		}},
	}
	pre := NewDefaultRequestPreprocessor(caps(true, false))
	individuals, err := pre.Process(req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	bag := individuals[0].Named()[AttributeFqn{Category: CategorySubject, ID: "urn:example:group"}]
	if bag == nil || bag.Size() != 2 {
		t.Fatalf("merged bag = %v, want 2 values", bag)
	}
}

func TestFingerprintStability(t *testing.T) {
	pre := NewDefaultRequestPreprocessor(caps(true, false))
	a, _ := pre.Process(simpleRequest())
	b, _ := pre.Process(simpleRequest())
	if a[0].Fingerprint() != b[0].Fingerprint() {
		t.Fatalf("identical requests must share a fingerprint")
	}

	other := simpleRequest()
	other.Categories[0].Attributes[0].Values = []*AttributeValue{NewStringValue("bob")}
	c, _ := pre.Process(other)
	if a[0].Fingerprint() == c[0].Fingerprint() {
		t.Fatalf("different requests must not collide")
	}
}
