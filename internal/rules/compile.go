package rules

import (
	"strings"
	"time"

	"reachpoint/internal/models"
)

// Condition is a compiled predicate evaluated against a customer. The
// evaluation time is passed in so recency rules are deterministic in tests.
type Condition interface {
	Matches(c *models.Customer, now time.Time) bool
}

// Compile validates a rule list and turns it into a predicate tree.
//
// Grouping is positional, not standard boolean precedence: rules are
// scanned left to right keeping a current group (AND by default). When the
// previous rule carries OR, the current group is closed — AND-groups of
// size >1 become an AND node on the andConditions list, OR-groups are
// flattened into the orConditions list — and a new OR-group starts with the
// current rule. The final predicate requires every entry of andConditions
// and at least one entry of orConditions to hold. A single-member OR list
// therefore contributes no disjunctive effect; it is a mandatory condition.
// This matches the behavior existing campaigns were built on and must not
// be "fixed" to conventional precedence.
func Compile(rs []models.AudienceRule) (Condition, error) {
	norm, err := normalize(rs)
	if err != nil {
		return nil, err
	}

	leaves := make([]Condition, len(norm))
	for i, n := range norm {
		leaves[i] = buildLeaf(n)
	}

	// A single rule compiles to its bare leaf, no group wrapper.
	if len(leaves) == 1 {
		return leaves[0], nil
	}

	var andConds, orConds []Condition

	group := []Condition{leaves[0]}
	groupIsOr := false

	flush := func() {
		if groupIsOr {
			orConds = append(orConds, group...)
		} else if len(group) > 1 {
			andConds = append(andConds, &andCondition{members: group})
		} else {
			andConds = append(andConds, group[0])
		}
	}

	for i := 1; i < len(leaves); i++ {
		if norm[i-1].logical == models.LogicalOr {
			flush()
			group = []Condition{leaves[i]}
			groupIsOr = true
		} else {
			group = append(group, leaves[i])
		}
	}
	flush()

	if len(orConds) == 0 && len(andConds) == 1 {
		return andConds[0], nil
	}
	if len(andConds) == 0 && len(orConds) == 1 {
		return orConds[0], nil
	}
	return &groupCondition{and: andConds, or: orConds}, nil
}

// buildLeaf builds the leaf condition for one normalized rule. The switch
// is exhaustive over FieldKind.
func buildLeaf(n normalized) Condition {
	switch n.kind {
	case FieldSpending:
		return &numericCondition{op: n.op, value: n.num, get: func(c *models.Customer) float64 {
			return c.TotalSpending
		}}
	case FieldVisitCount:
		return &numericCondition{op: n.op, value: n.num, get: func(c *models.Customer) float64 {
			return float64(c.VisitCount)
		}}
	case FieldDaysSinceLastVisit:
		return &recencyCondition{op: n.op, days: int(n.num)}
	case FieldRegistrationDate:
		return &dateCondition{op: n.op, day: n.date}
	case FieldSegment:
		if r, ok := legacySegments[n.str]; ok {
			return &spendingRangeCondition{rng: r, negate: n.op == OpNeq}
		}
		return &segmentCondition{op: n.op, value: n.str}
	case FieldActiveFlag:
		return &boolCondition{op: n.op, value: n.boolean}
	case FieldTags:
		return &tagsCondition{op: n.op, values: n.list}
	}
	panic("rules: unhandled field kind")
}

// andCondition matches when every member matches
type andCondition struct {
	members []Condition
}

func (a *andCondition) Matches(c *models.Customer, now time.Time) bool {
	for _, m := range a.members {
		if !m.Matches(c, now) {
			return false
		}
	}
	return true
}

// groupCondition is the top-level combination node: every and-entry must
// hold, and at least one or-entry must hold when the or list is non-empty.
type groupCondition struct {
	and []Condition
	or  []Condition
}

func (g *groupCondition) Matches(c *models.Customer, now time.Time) bool {
	for _, m := range g.and {
		if !m.Matches(c, now) {
			return false
		}
	}
	if len(g.or) > 0 {
		matched := false
		for _, m := range g.or {
			if m.Matches(c, now) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// numericCondition compares a numeric customer attribute against a value
type numericCondition struct {
	op    Operator
	value float64
	get   func(c *models.Customer) float64
}

func (n *numericCondition) Matches(c *models.Customer, _ time.Time) bool {
	v := n.get(c)
	switch n.op {
	case OpGt:
		return v > n.value
	case OpLt:
		return v < n.value
	case OpGte:
		return v >= n.value
	case OpLte:
		return v <= n.value
	case OpEq:
		return v == n.value
	case OpNeq:
		return v != n.value
	}
	return false
}

// recencyCondition compares the customer's last visit against a cutoff of
// now minus N days, day-truncated. "more than N days ago" means the visit
// day is strictly before the cutoff day; the cutoff day itself is excluded.
// A customer with no recorded visit matches nothing.
type recencyCondition struct {
	op   Operator
	days int
}

func (r *recencyCondition) Matches(c *models.Customer, now time.Time) bool {
	if c.LastVisit == nil {
		return false
	}
	cutoff := truncateDay(now).AddDate(0, 0, -r.days)
	visit := truncateDay(*c.LastVisit)
	switch r.op {
	case OpGt:
		return visit.Before(cutoff)
	case OpLt:
		return visit.After(cutoff)
	case OpGte:
		return !visit.After(cutoff)
	case OpLte:
		return !visit.Before(cutoff)
	case OpEq:
		return visit.Equal(cutoff)
	case OpNeq:
		return visit.Before(cutoff) || visit.After(cutoff)
	}
	return false
}

// dateCondition compares a date attribute against day boundaries of the
// rule's date: > is after the end of that day, < is before its start, ==
// is the full-day range.
type dateCondition struct {
	op  Operator
	day time.Time
}

func (d *dateCondition) Matches(c *models.Customer, _ time.Time) bool {
	v := c.RegistrationDate
	start := truncateDay(d.day)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	switch d.op {
	case OpGt:
		return v.After(end)
	case OpLt:
		return v.Before(start)
	case OpGte:
		return !v.Before(start)
	case OpLte:
		return !v.After(end)
	case OpEq:
		return !v.Before(start) && !v.After(end)
	case OpNeq:
		return v.Before(start) || v.After(end)
	}
	return false
}

// segmentCondition matches the stored segment value directly
type segmentCondition struct {
	op    Operator
	value string
}

func (s *segmentCondition) Matches(c *models.Customer, _ time.Time) bool {
	switch s.op {
	case OpEq:
		return c.Segment == s.value
	case OpNeq:
		return c.Segment != s.value
	case OpContains:
		return strings.Contains(c.Segment, s.value)
	case OpNotContains:
		return !strings.Contains(c.Segment, s.value)
	}
	return false
}

// spendingRangeCondition backs the legacy segment labels: the label is
// rewritten into a spending range instead of being matched against the
// stored segment.
type spendingRangeCondition struct {
	rng    spendingRange
	negate bool
}

func (s *spendingRangeCondition) Matches(c *models.Customer, _ time.Time) bool {
	in := s.rng.contains(c.TotalSpending)
	if s.negate {
		return !in
	}
	return in
}

// boolCondition matches the active flag
type boolCondition struct {
	op    Operator
	value bool
}

func (b *boolCondition) Matches(c *models.Customer, _ time.Time) bool {
	if b.op == OpNeq {
		return c.IsActive != b.value
	}
	return c.IsActive == b.value
}

// tagsCondition matches the customer tag set. contains requires every
// listed value to be present, not_contains requires none; ==/!= compare
// exact set equality independent of order.
type tagsCondition struct {
	op     Operator
	values []string
}

func (t *tagsCondition) Matches(c *models.Customer, _ time.Time) bool {
	switch t.op {
	case OpContains:
		for _, v := range t.values {
			if !c.HasTag(v) {
				return false
			}
		}
		return true
	case OpNotContains:
		for _, v := range t.values {
			if c.HasTag(v) {
				return false
			}
		}
		return true
	case OpEq:
		return sameSet(c.Tags, t.values)
	case OpNeq:
		return !sameSet(c.Tags, t.values)
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
