package xacml

import "time"

// Temporal comparison and duration arithmetic functions (core spec A.3.3,
// A.3.7). Date arithmetic uses calendar-aware month addition.
func registerTemporalFunctions(r *FunctionRegistry) {
	boolType := PrimitiveType(DatatypeBoolean)
	timeType := PrimitiveType(DatatypeTime)
	dateType := PrimitiveType(DatatypeDate)
	dateTimeType := PrimitiveType(DatatypeDateTime)
	dtdType := PrimitiveType(DatatypeDayTimeDuration)
	ymdType := PrimitiveType(DatatypeYearMonthDuration)

	cmp := func(typeName string, dt Datatype) {
		reg := func(name string, test func(a, b time.Time) bool) {
			r.mustRegister(newFunction(fnPrefix10+typeName+"-"+name, boolType, []Datatype{dt, dt}, false,
				func(_ *EvaluationContext, args []any) (any, error) {
					return NewBooleanValue(test(argValue(args[0]).Time(), argValue(args[1]).Time())), nil
				}))
		}
		reg("greater-than", func(a, b time.Time) bool { return a.After(b) })
		reg("greater-than-or-equal", func(a, b time.Time) bool { return !a.Before(b) })
		reg("less-than", func(a, b time.Time) bool { return a.Before(b) })
		reg("less-than-or-equal", func(a, b time.Time) bool { return !a.After(b) })
	}
	cmp("time", timeType)
	cmp("date", dateType)
	cmp("dateTime", dateTimeType)

	// time-in-range treats a low bound later than the high bound as a range
	// crossing midnight (core spec A.3.3).
	r.mustRegister(newFunction(fnPrefix20+"time-in-range", boolType, []Datatype{timeType, timeType, timeType}, false,
		func(_ *EvaluationContext, args []any) (any, error) {
			t := timeOfDay(argValue(args[0]).Time())
			low := timeOfDay(argValue(args[1]).Time())
			high := timeOfDay(argValue(args[2]).Time())
			if low <= high {
				return NewBooleanValue(t >= low && t <= high), nil
			}
			return NewBooleanValue(t >= low || t <= high), nil
		}))

	addDTD := func(name string, dt Datatype, mk func(time.Time) *AttributeValue, sign int) {
		r.mustRegister(newFunction(fnPrefix30+name, dt, []Datatype{dt, dtdType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				d := argValue(args[1]).Duration()
				if sign < 0 {
					d = -d
				}
				return mk(argValue(args[0]).Time().Add(d)), nil
			}))
	}
	addDTD("dateTime-add-dayTimeDuration", dateTimeType, NewDateTimeValue, 1)
	addDTD("dateTime-subtract-dayTimeDuration", dateTimeType, NewDateTimeValue, -1)

	addYMD := func(name string, dt Datatype, mk func(time.Time) *AttributeValue, sign int64) {
		r.mustRegister(newFunction(fnPrefix30+name, dt, []Datatype{dt, ymdType}, false,
			func(_ *EvaluationContext, args []any) (any, error) {
				months := sign * argValue(args[1]).Months()
				return mk(argValue(args[0]).Time().AddDate(0, int(months), 0)), nil
			}))
	}
	addYMD("dateTime-add-yearMonthDuration", dateTimeType, NewDateTimeValue, 1)
	addYMD("dateTime-subtract-yearMonthDuration", dateTimeType, NewDateTimeValue, -1)
	addYMD("date-add-yearMonthDuration", dateType, NewDateValue, 1)
	addYMD("date-subtract-yearMonthDuration", dateType, NewDateValue, -1)
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
