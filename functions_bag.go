package xacml

// Bag functions, one family per primitive datatype (core spec A.3.10):
// X-one-and-only, X-bag-size, X-is-in, X-bag.
func registerBagFunctions(r *FunctionRegistry) {
	intType := PrimitiveType(DatatypeInteger)
	boolType := PrimitiveType(DatatypeBoolean)

	for typeID, prefix := range typePrefixes {
		dt := PrimitiveType(typeID)
		bagType := BagType(typeID)
		name := shortTypeName(typeID)

		r.mustRegister(newFunction(prefix+name+"-one-and-only", dt, []Datatype{bagType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				return argBag(args[0]).Single()
			}))
		r.mustRegister(newFunction(prefix+name+"-bag-size", intType, []Datatype{bagType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				return NewIntegerValue(int64(argBag(args[0]).Size())), nil
			}))
		r.mustRegister(newFunction(prefix+name+"-is-in", boolType, []Datatype{dt, bagType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				return NewBooleanValue(argBag(args[1]).Contains(argValue(args[0]))), nil
			}))
		elem := dt // captured per iteration
		r.mustRegister(newFunction(prefix+name+"-bag", bagType, []Datatype{dt}, true,
			func(_ *EvaluationContext, args []any) (any, error) {
				vals := make([]*AttributeValue, len(args))
				for i, a := range args {
					vals[i] = argValue(a)
				}
				return NewBag(elem, vals...), nil
			}))
	}
}

// Set functions over bags of one primitive datatype (core spec A.3.11).
func registerSetFunctions(r *FunctionRegistry) {
	boolType := PrimitiveType(DatatypeBoolean)

	for typeID, prefix := range typePrefixes {
		dt := PrimitiveType(typeID)
		bagType := BagType(typeID)
		name := shortTypeName(typeID)
		elem := dt

		r.mustRegister(newFunction(prefix+name+"-intersection", bagType, []Datatype{bagType, bagType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				a, b := argBag(args[0]), argBag(args[1])
				var vals []*AttributeValue
				for _, v := range a.Values() {
					if b.Contains(v) && !containsValue(vals, v) {
						vals = append(vals, v)
					}
				}
				return NewBag(elem, vals...), nil
			}))
		r.mustRegister(newFunction(prefix+name+"-union", bagType, []Datatype{bagType, bagType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				a, b := argBag(args[0]), argBag(args[1])
				var vals []*AttributeValue
				for _, v := range a.Values() {
					if !containsValue(vals, v) {
						vals = append(vals, v)
					}
				}
				for _, v := range b.Values() {
					if !containsValue(vals, v) {
						vals = append(vals, v)
					}
				}
				return NewBag(elem, vals...), nil
			}))
		r.mustRegister(newFunction(prefix+name+"-at-least-one-member-of", boolType, []Datatype{bagType, bagType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				a, b := argBag(args[0]), argBag(args[1])
				for _, v := range a.Values() {
					if b.Contains(v) {
						return NewBooleanValue(true), nil
					}
				}
				return NewBooleanValue(false), nil
			}))
		r.mustRegister(newFunction(prefix+name+"-subset", boolType, []Datatype{bagType, bagType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				a, b := argBag(args[0]), argBag(args[1])
				for _, v := range a.Values() {
					if !b.Contains(v) {
						return NewBooleanValue(false), nil
					}
				}
				return NewBooleanValue(true), nil
			}))
		r.mustRegister(newFunction(prefix+name+"-set-equals", boolType, []Datatype{bagType, bagType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				a, b := argBag(args[0]), argBag(args[1])
				return NewBooleanValue(isSubsetOf(a, b) && isSubsetOf(b, a)), nil
			}))
	}
}

func containsValue(vals []*AttributeValue, v *AttributeValue) bool {
	for _, x := range vals {
		if x.Equal(v) {
			return true
		}
	}
	return false
}

func isSubsetOf(a, b *Bag) bool {
	for _, v := range a.Values() {
		if !b.Contains(v) {
			return false
		}
	}
	return true
}
