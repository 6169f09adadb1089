package xacml

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Standard XACML 3.0 datatype identifiers (core spec 10.2.7).
const (
	DatatypeString            = "http://www.w3.org/2001/XMLSchema#string"
	DatatypeBoolean           = "http://www.w3.org/2001/XMLSchema#boolean"
	DatatypeInteger           = "http://www.w3.org/2001/XMLSchema#integer"
	DatatypeDouble            = "http://www.w3.org/2001/XMLSchema#double"
	DatatypeTime              = "http://www.w3.org/2001/XMLSchema#time"
	DatatypeDate              = "http://www.w3.org/2001/XMLSchema#date"
	DatatypeDateTime          = "http://www.w3.org/2001/XMLSchema#dateTime"
	DatatypeDayTimeDuration   = "http://www.w3.org/2001/XMLSchema#dayTimeDuration"
	DatatypeYearMonthDuration = "http://www.w3.org/2001/XMLSchema#yearMonthDuration"
	DatatypeAnyURI            = "http://www.w3.org/2001/XMLSchema#anyURI"
	DatatypeHexBinary         = "http://www.w3.org/2001/XMLSchema#hexBinary"
	DatatypeBase64Binary      = "http://www.w3.org/2001/XMLSchema#base64Binary"
	DatatypeX500Name          = "urn:oasis:names:tc:xacml:1.0:data-type:x500Name"
	DatatypeRFC822Name        = "urn:oasis:names:tc:xacml:1.0:data-type:rfc822Name"
	DatatypeIPAddress         = "urn:oasis:names:tc:xacml:2.0:data-type:ipAddress"
	DatatypeDNSName           = "urn:oasis:names:tc:xacml:2.0:data-type:dnsName"
)

// datatypeFunction is the internal type of higher-order sub-function
// references. It never appears in requests or bags.
const datatypeFunction = "urn:oasis:names:tc:xacml:3.0:data-type:function"

// Datatype identifies a primitive type or a bag of a primitive type.
// Datatypes are compared by value; there is no widening between them.
type Datatype struct {
	ID      string
	IsBag   bool
	Element string // element datatype id when IsBag
}

func PrimitiveType(id string) Datatype { return Datatype{ID: id} }

func BagType(elementID string) Datatype {
	return Datatype{ID: elementID, IsBag: true, Element: elementID}
}

func (d Datatype) String() string {
	if d.IsBag {
		return "bag[" + shortTypeName(d.Element) + "]"
	}
	return shortTypeName(d.ID)
}

func shortTypeName(id string) string {
	if i := strings.LastIndexAny(id, "#:"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// AttributeValue is an immutable typed value: a datatype plus a payload and
// its canonical lexical form. Two values are equal iff their datatypes and
// canonical forms are equal.
type AttributeValue struct {
	dt  Datatype
	lex string
	v   any
}

func (a *AttributeValue) Datatype() Datatype { return a.dt }
func (a *AttributeValue) Lexical() string    { return a.lex }
func (a *AttributeValue) Native() any        { return a.v }

func (a *AttributeValue) Equal(b *AttributeValue) bool {
	return a != nil && b != nil && a.dt == b.dt && a.lex == b.lex
}

func (a *AttributeValue) String() string {
	return shortTypeName(a.dt.ID) + "(" + a.lex + ")"
}

// Typed payload accessors. Callers are expected to have checked the
// datatype first; the function library guarantees this by construction.
func (a *AttributeValue) Str() string             { s, _ := a.v.(string); return s }
func (a *AttributeValue) Bool() bool              { b, _ := a.v.(bool); return b }
func (a *AttributeValue) Int() int64              { i, _ := a.v.(int64); return i }
func (a *AttributeValue) Float() float64          { f, _ := a.v.(float64); return f }
func (a *AttributeValue) Time() time.Time         { t, _ := a.v.(time.Time); return t }
func (a *AttributeValue) Duration() time.Duration { d, _ := a.v.(time.Duration); return d }
func (a *AttributeValue) Months() int64           { m, _ := a.v.(int64); return m }
func (a *AttributeValue) Bytes() []byte           { b, _ := a.v.([]byte); return b }

type valueJSON struct {
	Datatype string `json:"datatype"`
	Value    string `json:"value"`
}

func (a *AttributeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Datatype: a.dt.ID, Value: a.lex})
}

func (a *AttributeValue) UnmarshalJSON(data []byte) error {
	var raw valueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseValue(raw.Datatype, raw.Value)
	if err != nil {
		return err
	}
	*a = *parsed
	return nil
}

// Constructors for programmatic policy assembly.

func NewStringValue(s string) *AttributeValue {
	return &AttributeValue{dt: PrimitiveType(DatatypeString), lex: s, v: s}
}

func NewBooleanValue(b bool) *AttributeValue {
	lex := "false"
	if b {
		lex = "true"
	}
	return &AttributeValue{dt: PrimitiveType(DatatypeBoolean), lex: lex, v: b}
}

func NewIntegerValue(i int64) *AttributeValue {
	return &AttributeValue{dt: PrimitiveType(DatatypeInteger), lex: strconv.FormatInt(i, 10), v: i}
}

func NewDoubleValue(f float64) *AttributeValue {
	return &AttributeValue{dt: PrimitiveType(DatatypeDouble), lex: canonicalDouble(f), v: f}
}

func NewTimeValue(t time.Time) *AttributeValue {
	u := t.UTC()
	return &AttributeValue{dt: PrimitiveType(DatatypeTime), lex: u.Format("15:04:05.999999999Z"), v: u}
}

func NewDateValue(t time.Time) *AttributeValue {
	u := t.UTC()
	return &AttributeValue{dt: PrimitiveType(DatatypeDate), lex: u.Format("2006-01-02Z"), v: u}
}

func NewDateTimeValue(t time.Time) *AttributeValue {
	u := t.UTC()
	return &AttributeValue{dt: PrimitiveType(DatatypeDateTime), lex: u.Format("2006-01-02T15:04:05.999999999Z"), v: u}
}

func NewDayTimeDurationValue(d time.Duration) *AttributeValue {
	return &AttributeValue{dt: PrimitiveType(DatatypeDayTimeDuration), lex: canonicalDayTimeDuration(d), v: d}
}

func NewYearMonthDurationValue(months int64) *AttributeValue {
	return &AttributeValue{dt: PrimitiveType(DatatypeYearMonthDuration), lex: canonicalYearMonthDuration(months), v: months}
}

func NewAnyURIValue(s string) *AttributeValue {
	return &AttributeValue{dt: PrimitiveType(DatatypeAnyURI), lex: s, v: s}
}

// ValueParser parses one lexical form of a given datatype.
type ValueParser func(lexical string) (*AttributeValue, error)

// DatatypeRegistry maps datatype identifiers to parsers. The standard set is
// installed by NewDatatypeRegistry; extensions may register additional
// datatypes before the registry is handed to the engine.
type DatatypeRegistry struct {
	parsers map[string]ValueParser
}

func NewDatatypeRegistry() *DatatypeRegistry {
	r := &DatatypeRegistry{parsers: make(map[string]ValueParser, 16)}
	for id, p := range standardParsers {
		r.parsers[id] = p
	}
	return r
}

func (r *DatatypeRegistry) Register(datatypeID string, p ValueParser) error {
	if _, exists := r.parsers[datatypeID]; exists {
		return fmt.Errorf("datatype already registered: %s", datatypeID)
	}
	r.parsers[datatypeID] = p
	return nil
}

func (r *DatatypeRegistry) Parse(datatypeID, lexical string) (*AttributeValue, error) {
	p, ok := r.parsers[datatypeID]
	if !ok {
		return nil, newIndeterminate(StatusSyntaxError, "unknown datatype %q", datatypeID)
	}
	return p(lexical)
}

// ParseValue parses a lexical form against the standard datatype set.
func ParseValue(datatypeID, lexical string) (*AttributeValue, error) {
	p, ok := standardParsers[datatypeID]
	if !ok {
		return nil, newIndeterminate(StatusSyntaxError, "unknown datatype %q", datatypeID)
	}
	return p(lexical)
}

var standardParsers = map[string]ValueParser{
	DatatypeString:            func(lex string) (*AttributeValue, error) { return NewStringValue(lex), nil },
	DatatypeBoolean:           parseBoolean,
	DatatypeInteger:           parseInteger,
	DatatypeDouble:            parseDouble,
	DatatypeTime:              parseTime,
	DatatypeDate:              parseDate,
	DatatypeDateTime:          parseDateTime,
	DatatypeDayTimeDuration:   parseDayTimeDuration,
	DatatypeYearMonthDuration: parseYearMonthDuration,
	DatatypeAnyURI:            parseAnyURI,
	DatatypeHexBinary:         parseHexBinary,
	DatatypeBase64Binary:      parseBase64Binary,
	DatatypeX500Name:          parseX500Name,
	DatatypeRFC822Name:        parseRFC822Name,
	DatatypeIPAddress:         parseIPAddress,
	DatatypeDNSName:           parseDNSName,
}

func syntaxErr(datatypeID, lex string) *IndeterminateError {
	return newIndeterminate(StatusSyntaxError, "invalid %s lexical form %q", shortTypeName(datatypeID), lex)
}

func parseBoolean(lex string) (*AttributeValue, error) {
	switch strings.TrimSpace(lex) {
	case "true", "1":
		return NewBooleanValue(true), nil
	case "false", "0":
		return NewBooleanValue(false), nil
	}
	return nil, syntaxErr(DatatypeBoolean, lex)
}

func parseInteger(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	s = strings.TrimPrefix(s, "+")
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, syntaxErr(DatatypeInteger, lex)
	}
	return NewIntegerValue(i), nil
}

func parseDouble(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	switch s {
	case "INF":
		return NewDoubleValue(math.Inf(1)), nil
	case "-INF":
		return NewDoubleValue(math.Inf(-1)), nil
	case "NaN":
		return NewDoubleValue(math.NaN()), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, syntaxErr(DatatypeDouble, lex)
	}
	return NewDoubleValue(f), nil
}

// canonicalDouble renders the XML-schema canonical form, e.g. 1.5E0.
func canonicalDouble(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'E', -1, 64)
	// FormatFloat writes 1E+00; canonical XSD wants a mantissa with a dot and
	// an unpadded exponent: 1.0E0.
	mant, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	exp = strings.TrimPrefix(exp, "+")
	if len(exp) > 1 {
		neg := strings.HasPrefix(exp, "-")
		trimmed := strings.TrimLeft(strings.TrimPrefix(exp, "-"), "0")
		if trimmed == "" {
			trimmed = "0"
		}
		if neg {
			trimmed = "-" + trimmed
		}
		exp = trimmed
	}
	return mant + "E" + exp
}

var timeLayouts = []string{
	"15:04:05.999999999Z07:00",
	"15:04:05.999999999",
	"15:04:05Z07:00",
	"15:04:05",
}

func parseTime(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeValue(t), nil
		}
	}
	return nil, syntaxErr(DatatypeTime, lex)
}

var dateLayouts = []string{
	"2006-01-02Z07:00",
	"2006-01-02",
}

func parseDate(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDateValue(t), nil
		}
	}
	return nil, syntaxErr(DatatypeDate, lex)
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
}

func parseDateTime(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDateTimeValue(t), nil
		}
	}
	return nil, syntaxErr(DatatypeDateTime, lex)
}

var dayTimeDurationRe = regexp.MustCompile(`^(-)?P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

func parseDayTimeDuration(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	m := dayTimeDurationRe.FindStringSubmatch(s)
	if m == nil || (m[2] == "" && m[3] == "" && m[4] == "" && m[5] == "") {
		return nil, syntaxErr(DatatypeDayTimeDuration, lex)
	}
	var d time.Duration
	if m[2] != "" {
		days, _ := strconv.ParseInt(m[2], 10, 64)
		d += time.Duration(days) * 24 * time.Hour
	}
	if m[3] != "" {
		h, _ := strconv.ParseInt(m[3], 10, 64)
		d += time.Duration(h) * time.Hour
	}
	if m[4] != "" {
		min, _ := strconv.ParseInt(m[4], 10, 64)
		d += time.Duration(min) * time.Minute
	}
	if m[5] != "" {
		sec, _ := strconv.ParseFloat(m[5], 64)
		d += time.Duration(sec * float64(time.Second))
	}
	if m[1] == "-" {
		d = -d
	}
	return NewDayTimeDurationValue(d), nil
}

func canonicalDayTimeDuration(d time.Duration) string {
	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}
	sb.WriteByte('P')
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	secs := d.Seconds()
	if days > 0 {
		fmt.Fprintf(&sb, "%dD", days)
	}
	if hours > 0 || mins > 0 || secs > 0 || days == 0 {
		sb.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&sb, "%dH", hours)
		}
		if mins > 0 {
			fmt.Fprintf(&sb, "%dM", mins)
		}
		if secs > 0 || (hours == 0 && mins == 0) {
			fmt.Fprintf(&sb, "%sS", strconv.FormatFloat(secs, 'f', -1, 64))
		}
	}
	return sb.String()
}

var yearMonthDurationRe = regexp.MustCompile(`^(-)?P(?:(\d+)Y)?(?:(\d+)M)?$`)

func parseYearMonthDuration(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	m := yearMonthDurationRe.FindStringSubmatch(s)
	if m == nil || (m[2] == "" && m[3] == "") {
		return nil, syntaxErr(DatatypeYearMonthDuration, lex)
	}
	var months int64
	if m[2] != "" {
		y, _ := strconv.ParseInt(m[2], 10, 64)
		months += y * 12
	}
	if m[3] != "" {
		mo, _ := strconv.ParseInt(m[3], 10, 64)
		months += mo
	}
	if m[1] == "-" {
		months = -months
	}
	return NewYearMonthDurationValue(months), nil
}

func canonicalYearMonthDuration(months int64) string {
	var sb strings.Builder
	if months < 0 {
		sb.WriteByte('-')
		months = -months
	}
	sb.WriteByte('P')
	years := months / 12
	months %= 12
	if years > 0 {
		fmt.Fprintf(&sb, "%dY", years)
	}
	if months > 0 || years == 0 {
		fmt.Fprintf(&sb, "%dM", months)
	}
	return sb.String()
}

func parseAnyURI(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	if strings.ContainsAny(s, " \t\n") {
		return nil, syntaxErr(DatatypeAnyURI, lex)
	}
	return NewAnyURIValue(s), nil
}

func parseHexBinary(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, syntaxErr(DatatypeHexBinary, lex)
	}
	canon := strings.ToUpper(hex.EncodeToString(b))
	return &AttributeValue{dt: PrimitiveType(DatatypeHexBinary), lex: canon, v: b}, nil
}

func parseBase64Binary(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, syntaxErr(DatatypeBase64Binary, lex)
	}
	canon := base64.StdEncoding.EncodeToString(b)
	return &AttributeValue{dt: PrimitiveType(DatatypeBase64Binary), lex: canon, v: b}, nil
}

// parseX500Name normalizes RDN separators and case so equality can compare
// canonical forms directly.
func parseX500Name(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	if s == "" || !strings.Contains(s, "=") {
		return nil, syntaxErr(DatatypeX500Name, lex)
	}
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	canon := strings.ToLower(strings.Join(parts, ","))
	return &AttributeValue{dt: PrimitiveType(DatatypeX500Name), lex: canon, v: canon}, nil
}

// parseRFC822Name keeps the local part case-sensitive and lowercases the
// domain, per the rfc822Name matching rules (core spec A.3.14).
func parseRFC822Name(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || domain == "" {
		return nil, syntaxErr(DatatypeRFC822Name, lex)
	}
	canon := local + "@" + strings.ToLower(domain)
	return &AttributeValue{dt: PrimitiveType(DatatypeRFC822Name), lex: canon, v: canon}, nil
}

func parseIPAddress(lex string) (*AttributeValue, error) {
	s := strings.TrimSpace(lex)
	host := s
	if strings.HasPrefix(host, "[") {
		// v6 form: [addr](/mask)?(:ports)?
		end := strings.IndexByte(host, ']')
		if end < 0 {
			return nil, syntaxErr(DatatypeIPAddress, lex)
		}
		host = host[1:end]
	} else {
		if i := strings.IndexAny(host, "/:"); i >= 0 {
			host = host[:i]
		}
	}
	if net.ParseIP(host) == nil {
		return nil, syntaxErr(DatatypeIPAddress, lex)
	}
	return &AttributeValue{dt: PrimitiveType(DatatypeIPAddress), lex: s, v: s}, nil
}

func parseDNSName(lex string) (*AttributeValue, error) {
	s := strings.ToLower(strings.TrimSpace(lex))
	if s == "" {
		return nil, syntaxErr(DatatypeDNSName, lex)
	}
	return &AttributeValue{dt: PrimitiveType(DatatypeDNSName), lex: s, v: s}, nil
}
