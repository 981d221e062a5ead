// Package query defines the backend-agnostic query model. A Query is a tree
// of predicate rules plus sort, paging and fetch information; backends compile
// it to whatever their storage engine understands.
package query

import (
	"fmt"
	"strings"
)

// Operator represents a predicate or composition operator in a query tree
type Operator int

const (
	// OpEqual matches values equal to the operand
	OpEqual Operator = iota
	// OpIn matches values contained in the operand list
	OpIn
	// OpGreater matches values strictly greater than the operand
	OpGreater
	// OpGreaterEqual matches values greater than or equal to the operand
	OpGreaterEqual
	// OpLess matches values strictly less than the operand
	OpLess
	// OpLessEqual matches values less than or equal to the operand
	OpLessEqual
	// OpLike matches string values containing the operand (case-insensitive)
	OpLike
	// OpRange matches values between the two operands, inclusive
	OpRange
	// OpSearch matches entities whose stringified values contain the operand
	OpSearch
	// OpAnd composes nested rules conjunctively
	OpAnd
	// OpOr composes nested rules disjunctively
	OpOr
	// OpNot negates its single nested rule
	OpNot
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "EQUALS"
	case OpIn:
		return "IN"
	case OpGreater:
		return "GREATER"
	case OpGreaterEqual:
		return "GREATER_EQUAL"
	case OpLess:
		return "LESS"
	case OpLessEqual:
		return "LESS_EQUAL"
	case OpLike:
		return "LIKE"
	case OpRange:
		return "RANGE"
	case OpSearch:
		return "SEARCH"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpNot:
		return "NOT"
	default:
		return "UNKNOWN"
	}
}

// Rule is a single node in a query tree. Leaf rules carry an attribute name,
// a comparison operator and one or more operand values. Composite rules
// (AND, OR, NOT) carry nested rules instead.
type Rule struct {
	Attr   string
	Op     Operator
	Value  interface{}   // operand for unary comparisons
	Values []interface{} // operands for IN and RANGE
	Nested []Rule        // children for AND, OR, NOT
}

// IsComposite reports whether the rule composes nested rules
func (r Rule) IsComposite() bool {
	return r.Op == OpAnd || r.Op == OpOr || r.Op == OpNot
}

// String renders the rule for diagnostics
func (r Rule) String() string {
	if r.IsComposite() {
		parts := make([]string, len(r.Nested))
		for i, n := range r.Nested {
			parts[i] = n.String()
		}
		return fmt.Sprintf("%s(%s)", r.Op, strings.Join(parts, ", "))
	}
	if len(r.Values) > 0 {
		return fmt.Sprintf("%s %s %v", r.Attr, r.Op, r.Values)
	}
	return fmt.Sprintf("%s %s %v", r.Attr, r.Op, r.Value)
}

// UnlimitedPageSize disables paging on a query
const UnlimitedPageSize = 0

// Query describes a filtered, sorted, paged selection of entities. Rules at
// the top level combine conjunctively. A zero PageSize means no page limit.
type Query struct {
	Rules    []Rule
	Sort     *Sort
	Offset   int
	PageSize int
	Fetch    *Fetch
}

// New returns an empty query matching all entities
func New() *Query {
	return &Query{}
}

// Eq appends an equality rule
func (q *Query) Eq(attr string, value interface{}) *Query {
	q.Rules = append(q.Rules, Rule{Attr: attr, Op: OpEqual, Value: value})
	return q
}

// In appends a membership rule
func (q *Query) In(attr string, values []interface{}) *Query {
	q.Rules = append(q.Rules, Rule{Attr: attr, Op: OpIn, Values: values})
	return q
}

// Gt appends a greater-than rule
func (q *Query) Gt(attr string, value interface{}) *Query {
	q.Rules = append(q.Rules, Rule{Attr: attr, Op: OpGreater, Value: value})
	return q
}

// Ge appends a greater-or-equal rule
func (q *Query) Ge(attr string, value interface{}) *Query {
	q.Rules = append(q.Rules, Rule{Attr: attr, Op: OpGreaterEqual, Value: value})
	return q
}

// Lt appends a less-than rule
func (q *Query) Lt(attr string, value interface{}) *Query {
	q.Rules = append(q.Rules, Rule{Attr: attr, Op: OpLess, Value: value})
	return q
}

// Le appends a less-or-equal rule
func (q *Query) Le(attr string, value interface{}) *Query {
	q.Rules = append(q.Rules, Rule{Attr: attr, Op: OpLessEqual, Value: value})
	return q
}

// Like appends a substring-match rule
func (q *Query) Like(attr string, value string) *Query {
	q.Rules = append(q.Rules, Rule{Attr: attr, Op: OpLike, Value: value})
	return q
}

// Search appends a full-record search rule
func (q *Query) Search(value string) *Query {
	q.Rules = append(q.Rules, Rule{Op: OpSearch, Value: value})
	return q
}

// WithSort sets the sort order
func (q *Query) WithSort(s *Sort) *Query {
	q.Sort = s
	return q
}

// WithPage sets offset and page size
func (q *Query) WithPage(offset, pageSize int) *Query {
	q.Offset = offset
	q.PageSize = pageSize
	return q
}

// WithFetch sets the attribute projection
func (q *Query) WithFetch(f *Fetch) *Query {
	q.Fetch = f
	return q
}

// Clone returns a deep copy of the query
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	clone := &Query{
		Offset:   q.Offset,
		PageSize: q.PageSize,
		Fetch:    q.Fetch,
	}
	clone.Rules = append(clone.Rules, q.Rules...)
	if q.Sort != nil {
		s := *q.Sort
		s.Orders = append([]Order(nil), q.Sort.Orders...)
		clone.Sort = &s
	}
	return clone
}

// Attrs returns the set of attribute names referenced by the query tree
func (q *Query) Attrs() []string {
	seen := make(map[string]bool)
	var attrs []string
	var walk func(rules []Rule)
	walk = func(rules []Rule) {
		for _, r := range rules {
			if r.IsComposite() {
				walk(r.Nested)
				continue
			}
			if r.Attr != "" && !seen[r.Attr] {
				seen[r.Attr] = true
				attrs = append(attrs, r.Attr)
			}
		}
	}
	walk(q.Rules)
	if q.Sort != nil {
		for _, o := range q.Sort.Orders {
			if !seen[o.Attr] {
				seen[o.Attr] = true
				attrs = append(attrs, o.Attr)
			}
		}
	}
	return attrs
}
