package rules

import (
	"strconv"
	"time"

	"reachpoint/internal/models"
)

// FieldKind is the closed set of fields the rule language understands.
// Every kind has exactly one leaf builder in compile.go.
type FieldKind int

const (
	FieldSpending FieldKind = iota
	FieldVisitCount
	FieldDaysSinceLastVisit
	FieldRegistrationDate
	FieldSegment
	FieldActiveFlag
	FieldTags
)

// Operator is a comparison operator of the rule language
type Operator string

const (
	OpGt          Operator = ">"
	OpLt          Operator = "<"
	OpGte         Operator = ">="
	OpLte         Operator = "<="
	OpEq          Operator = "=="
	OpNeq         Operator = "!="
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

// fieldKinds maps wire field names to their kind
var fieldKinds = map[string]FieldKind{
	"spending":              FieldSpending,
	"visit_count":           FieldVisitCount,
	"days_since_last_visit": FieldDaysSinceLastVisit,
	"registration_date":     FieldRegistrationDate,
	"segment":               FieldSegment,
	"is_active":             FieldActiveFlag,
	"tags":                  FieldTags,
}

var comparisonOps = map[Operator]bool{
	OpGt: true, OpLt: true, OpGte: true, OpLte: true, OpEq: true, OpNeq: true,
}

var equalityOps = map[Operator]bool{
	OpEq: true, OpNeq: true,
}

// canonicalTiers are the stored segment values rules may match directly
var canonicalTiers = map[string]bool{
	"vip":     true,
	"premium": true,
	"regular": true,
	"new":     true,
}

// legacySegments maps the four legacy labels to spending ranges, kept for
// rules written before segments were stored on the customer. Ranges are
// half-open: [Min, Max).
var legacySegments = map[string]spendingRange{
	"VIP":     {Min: 50000, Max: -1},
	"Premium": {Min: 20000, Max: 50000},
	"Regular": {Min: 5000, Max: 20000},
	"New":     {Min: -1, Max: 5000},
}

type spendingRange struct {
	Min float64 // -1 means unbounded below
	Max float64 // -1 means unbounded above
}

func (r spendingRange) contains(v float64) bool {
	if r.Min >= 0 && v < r.Min {
		return false
	}
	if r.Max >= 0 && v >= r.Max {
		return false
	}
	return true
}

// normalized is a rule after type coercion
type normalized struct {
	kind    FieldKind
	op      Operator
	num     float64
	date    time.Time
	boolean bool
	str     string
	list    []string
	logical models.LogicalOperator
}

// Validate normalizes a rule list and rejects malformed rules. It coerces
// string values to numbers, booleans and dates as the field requires, and
// defaults a missing logical operator to AND on all but the last rule. The
// returned slice is a normalized copy; the input is not modified.
func Validate(rs []models.AudienceRule) ([]models.AudienceRule, error) {
	norm, err := normalize(rs)
	if err != nil {
		return nil, err
	}

	out := make([]models.AudienceRule, len(rs))
	for i, r := range rs {
		out[i] = r
		out[i].LogicalOperator = norm[i].logical
		switch norm[i].kind {
		case FieldSpending, FieldVisitCount, FieldDaysSinceLastVisit:
			out[i].Value = norm[i].num
		case FieldRegistrationDate:
			out[i].Value = norm[i].date.Format("2006-01-02")
		case FieldSegment:
			out[i].Value = norm[i].str
		case FieldActiveFlag:
			out[i].Value = norm[i].boolean
		case FieldTags:
			out[i].Value = norm[i].list
		}
	}
	return out, nil
}

// normalize performs the per-rule checks shared by Validate and Compile
func normalize(rs []models.AudienceRule) ([]normalized, error) {
	norm := make([]normalized, len(rs))

	for i, r := range rs {
		kind, ok := fieldKinds[r.Field]
		if !ok {
			return nil, unsupportedField(i, r.Field)
		}

		op := Operator(r.Operator)
		n := normalized{kind: kind, op: op}

		switch kind {
		case FieldSpending, FieldVisitCount, FieldDaysSinceLastVisit:
			if !comparisonOps[op] {
				return nil, unsupportedOperator(i, r.Operator, r.Field)
			}
			v, ok := toNumber(r.Value)
			if !ok {
				return nil, invalidValue(i, "field %q requires a numeric value, got %v", r.Field, r.Value)
			}
			n.num = v

		case FieldRegistrationDate:
			if !comparisonOps[op] {
				return nil, unsupportedOperator(i, r.Operator, r.Field)
			}
			d, ok := toDate(r.Value)
			if !ok {
				return nil, invalidDate(i, r.Value)
			}
			n.date = d

		case FieldSegment:
			s, ok := r.Value.(string)
			if !ok {
				return nil, invalidValue(i, "field %q requires a string value, got %v", r.Field, r.Value)
			}
			if _, legacy := legacySegments[s]; legacy {
				if !equalityOps[op] {
					return nil, unsupportedOperator(i, r.Operator, r.Field)
				}
			} else if op == OpContains || op == OpNotContains {
				// Substring matching is only meaningful against the
				// canonical stored tiers
				if !canonicalTiers[s] {
					return nil, unsupportedOperator(i, r.Operator, r.Field)
				}
			} else if !equalityOps[op] {
				return nil, unsupportedOperator(i, r.Operator, r.Field)
			}
			n.str = s

		case FieldActiveFlag:
			if !equalityOps[op] {
				return nil, unsupportedOperator(i, r.Operator, r.Field)
			}
			b, ok := toBool(r.Value)
			if !ok {
				return nil, invalidValue(i, "field %q requires a boolean value, got %v", r.Field, r.Value)
			}
			n.boolean = b

		case FieldTags:
			if !equalityOps[op] && op != OpContains && op != OpNotContains {
				return nil, unsupportedOperator(i, r.Operator, r.Field)
			}
			list, ok := toStringList(r.Value)
			if !ok {
				return nil, invalidValue(i, "field %q requires a string or list of strings, got %v", r.Field, r.Value)
			}
			n.list = list
		}

		n.logical = r.LogicalOperator
		if n.logical == "" && i < len(rs)-1 {
			n.logical = models.LogicalAnd
		}
		if n.logical != "" && n.logical != models.LogicalAnd && n.logical != models.LogicalOr {
			return nil, invalidValue(i, "unknown logical operator %q", n.logical)
		}

		norm[i] = n
	}
	return norm, nil
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, false
		}
		return b, true
	}
	return false, false
}

func toDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		if d, err := time.Parse("2006-01-02", x); err == nil {
			return d, true
		}
		if d, err := time.Parse(time.RFC3339, x); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func toStringList(v any) ([]string, bool) {
	switch x := v.(type) {
	case string:
		return []string{x}, true
	case []string:
		return x, true
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
