package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 32

// Expression is a structured filter with must/should/must_not boolean semantics.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many should conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditionsPerGroup)
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// Condition is a single filter clause: either a tag match or a numeric range.
type Condition struct {
	key       string
	match     string
	rangeExpr *Range
}

// NewMatch creates an exact tag match condition.
func NewMatch(key, match string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, match: match}, nil
}

// NewRange creates a numeric range condition.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Match returns the exact match value.
func (c Condition) Match() string { return c.match }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether this is a match condition.
func (c Condition) IsMatch() bool { return c.match != "" }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// ReservedKey is the partition field; it can never be supplied as a filter.
const ReservedKey = "namespace"

// FromMap builds a must-only expression from a decoded JSON object.
// Accepted values: string or bool (tag match), number (exact numeric match),
// and objects with gt/gte/lt/lte number bounds (numeric range).
func FromMap(m map[string]any) (Expression, error) {
	if len(m) == 0 {
		return Expression{}, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, k := range keys {
		if k == ReservedKey {
			return Expression{}, fmt.Errorf("filter key %q is reserved", k)
		}
		cond, err := conditionFromValue(k, m[k])
		if err != nil {
			return Expression{}, err
		}
		conds = append(conds, cond)
	}
	return NewExpression(conds, nil, nil)
}

func conditionFromValue(key string, v any) (Condition, error) {
	switch val := v.(type) {
	case string:
		return NewMatch(key, val)
	case bool:
		return NewMatch(key, strconv.FormatBool(val))
	case map[string]any:
		bounds := make(map[string]*float64, 4)
		for op, raw := range val {
			f, ok := toFloat(raw)
			if !ok {
				return Condition{}, fmt.Errorf("range bound %s.%s must be a number", key, op)
			}
			switch op {
			case "gt", "gte", "lt", "lte":
				bounds[op] = &f
			default:
				return Condition{}, fmt.Errorf("unknown range operator %q for key %q", op, key)
			}
		}
		r, err := NewRangeFilter(bounds["gt"], bounds["gte"], bounds["lt"], bounds["lte"])
		if err != nil {
			return Condition{}, fmt.Errorf("key %q: %w", key, err)
		}
		return NewRange(key, r)
	default:
		f, ok := toFloat(v)
		if !ok {
			return Condition{}, fmt.Errorf("unsupported filter value type %T for key %q", v, key)
		}
		r, err := NewRangeFilter(nil, &f, nil, &f)
		if err != nil {
			return Condition{}, err
		}
		return NewRange(key, r)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Keys returns every field name referenced by the expression.
func (e Expression) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, group := range [][]Condition{e.must, e.should, e.mustNot} {
		for _, c := range group {
			if !seen[c.key] {
				seen[c.key] = true
				keys = append(keys, c.key)
			}
		}
	}
	return keys
}

// Matches evaluates the expression in-process against a record's tag and numeric attributes.
// Tag comparison is case-insensitive and splits values on ',', mirroring TAG fields in the search index.
func (e Expression) Matches(tags map[string]string, numerics map[string]float64) bool {
	for _, c := range e.must {
		if !c.matches(tags, numerics) {
			return false
		}
	}
	if len(e.should) > 0 {
		matched := false
		for _, c := range e.should {
			if c.matches(tags, numerics) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, c := range e.mustNot {
		if c.matches(tags, numerics) {
			return false
		}
	}
	return true
}

func (c Condition) matches(tags map[string]string, numerics map[string]float64) bool {
	if c.IsMatch() {
		v, ok := tags[c.key]
		if !ok {
			return false
		}
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), c.match) {
				return true
			}
		}
		return false
	}
	if c.IsRange() {
		v, ok := numerics[c.key]
		return ok && c.rangeExpr.Contains(v)
	}
	return false
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	if r.gt != nil && v <= *r.gt {
		return false
	}
	if r.gte != nil && v < *r.gte {
		return false
	}
	if r.lt != nil && v >= *r.lt {
		return false
	}
	if r.lte != nil && v > *r.lte {
		return false
	}
	return true
}
