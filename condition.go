package xacml

import "fmt"

// Condition wraps a boolean-valued expression (core spec 5.25).
type Condition struct {
	expr Expression
}

func NewCondition(expr Expression) (*Condition, error) {
	if rt := expr.ReturnType(); rt != PrimitiveType(DatatypeBoolean) {
		return nil, fmt.Errorf("condition expression must return boolean, got %s", rt)
	}
	return &Condition{expr: expr}, nil
}

// Evaluate returns the condition outcome. A nil Condition is always true.
func (c *Condition) Evaluate(ctx *EvaluationContext) (bool, error) {
	if c == nil {
		return true, nil
	}
	v, err := c.expr.Evaluate(ctx)
	if err != nil {
		return false, asIndeterminate(err)
	}
	return argValue(v).Bool(), nil
}
