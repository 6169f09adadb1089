package xacml

import (
	"fmt"
	"strings"
)

// XACML 3.0 standard status codes (core spec B.9).
const (
	StatusOK               = "urn:oasis:names:tc:xacml:1.0:status:ok"
	StatusMissingAttribute = "urn:oasis:names:tc:xacml:1.0:status:missing-attribute"
	StatusSyntaxError      = "urn:oasis:names:tc:xacml:1.0:status:syntax-error"
	StatusProcessingError  = "urn:oasis:names:tc:xacml:1.0:status:processing-error"
)

// Status is the status block attached to a Result. MissingFqn and
// MissingDatatype identify the AttributeDesignator that could not be
// resolved when Code is missing-attribute (core spec 5.58).
type Status struct {
	Code            string        `json:"code"`
	Message         string        `json:"message,omitempty"`
	MissingFqn      *AttributeFqn `json:"missing_fqn,omitempty"`
	MissingDatatype string        `json:"missing_datatype,omitempty"`
}

func (s *Status) String() string {
	if s == nil {
		return StatusOK
	}
	short := s.Code
	if i := strings.LastIndexByte(short, ':'); i >= 0 {
		short = short[i+1:]
	}
	if s.Message == "" {
		return short
	}
	return short + ": " + s.Message
}

// IndeterminateError is the evaluation error carried by every Indeterminate
// propagation inside the engine. It never crosses the public Evaluate API;
// the PDP converts it to a Result with an Indeterminate decision.
type IndeterminateError struct {
	StatusCode      string
	Message         string
	Cause           error
	MissingFqn      *AttributeFqn
	MissingDatatype string
}

func newIndeterminate(code, format string, args ...any) *IndeterminateError {
	return &IndeterminateError{StatusCode: code, Message: fmt.Sprintf(format, args...)}
}

func wrapIndeterminate(cause error, code, format string, args ...any) *IndeterminateError {
	e := newIndeterminate(code, format, args...)
	e.Cause = cause
	if ie, ok := cause.(*IndeterminateError); ok {
		e.MissingFqn = ie.MissingFqn
		e.MissingDatatype = ie.MissingDatatype
	}
	return e
}

// missingAttributeError builds the missing-attribute error with the offending
// designator attached, as required for the status detail.
func missingAttributeError(fqn AttributeFqn, datatypeID string) *IndeterminateError {
	f := fqn
	return &IndeterminateError{
		StatusCode:      StatusMissingAttribute,
		Message:         fmt.Sprintf("no value found for attribute %s", fqn),
		MissingFqn:      &f,
		MissingDatatype: datatypeID,
	}
}

func (e *IndeterminateError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *IndeterminateError) Unwrap() error { return e.Cause }

// Status converts the error to a Result status block.
func (e *IndeterminateError) Status() *Status {
	return &Status{
		Code:            e.StatusCode,
		Message:         e.Message,
		MissingFqn:      e.MissingFqn,
		MissingDatatype: e.MissingDatatype,
	}
}

// asIndeterminate normalizes any error raised during evaluation into an
// IndeterminateError; plain errors (e.g. from attribute providers) become
// processing errors.
func asIndeterminate(err error) *IndeterminateError {
	if ie, ok := err.(*IndeterminateError); ok {
		return ie
	}
	return wrapIndeterminate(err, StatusProcessingError, "evaluation error")
}
