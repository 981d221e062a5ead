package rest

import (
	"strconv"
	"strings"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// ParseQuery parses the q parameter into query rules. The syntax follows
// RSQL: ';' joins conjunctively, ',' disjunctively, comparisons are
// attr==value, attr!=value, attr=gt=value, =ge=, =lt=, =le=, =like=,
// attr=in=(a,b), attr=rng=(low,high) and *=q=term for full text search.
// Values may be quoted with single or double quotes.
func ParseQuery(et *meta.EntityType, q string) ([]query.Rule, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	p := &rsqlParser{et: et, input: q}
	rule, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, data.NewQueryError("Unexpected character at position %d in query '%s'", p.pos, q)
	}
	if rule.Op == query.OpAnd {
		return rule.Nested, nil
	}
	return []query.Rule{rule}, nil
}

type rsqlParser struct {
	et    *meta.EntityType
	input string
	pos   int
}

func (p *rsqlParser) done() bool {
	return p.pos >= len(p.input)
}

func (p *rsqlParser) peek() byte {
	if p.done() {
		return 0
	}
	return p.input[p.pos]
}

// parseOr handles ',' separated disjunctions
func (p *rsqlParser) parseOr() (query.Rule, error) {
	first, err := p.parseAnd()
	if err != nil {
		return query.Rule{}, err
	}
	nested := []query.Rule{first}
	for !p.done() && p.peek() == ',' {
		p.pos++
		next, err := p.parseAnd()
		if err != nil {
			return query.Rule{}, err
		}
		nested = append(nested, next)
	}
	if len(nested) == 1 {
		return nested[0], nil
	}
	return query.Rule{Op: query.OpOr, Nested: nested}, nil
}

// parseAnd handles ';' separated conjunctions
func (p *rsqlParser) parseAnd() (query.Rule, error) {
	first, err := p.parseTerm()
	if err != nil {
		return query.Rule{}, err
	}
	nested := []query.Rule{first}
	for !p.done() && p.peek() == ';' {
		p.pos++
		next, err := p.parseTerm()
		if err != nil {
			return query.Rule{}, err
		}
		nested = append(nested, next)
	}
	if len(nested) == 1 {
		return nested[0], nil
	}
	return query.Rule{Op: query.OpAnd, Nested: nested}, nil
}

func (p *rsqlParser) parseTerm() (query.Rule, error) {
	if p.peek() == '(' {
		p.pos++
		rule, err := p.parseOr()
		if err != nil {
			return query.Rule{}, err
		}
		if p.done() || p.peek() != ')' {
			return query.Rule{}, data.NewQueryError("Missing closing parenthesis in query '%s'", p.input)
		}
		p.pos++
		return rule, nil
	}
	return p.parseComparison()
}

func (p *rsqlParser) parseComparison() (query.Rule, error) {
	selector := p.readSelector()
	if selector == "" {
		return query.Rule{}, data.NewQueryError("Expected attribute name at position %d in query '%s'", p.pos, p.input)
	}
	op, err := p.readOperator()
	if err != nil {
		return query.Rule{}, err
	}

	if op == "=q=" {
		value, err := p.readValue()
		if err != nil {
			return query.Rule{}, err
		}
		if selector == "*" {
			return query.Rule{Op: query.OpSearch, Value: value}, nil
		}
		attr, err := p.attribute(selector)
		if err != nil {
			return query.Rule{}, err
		}
		return query.Rule{Attr: attr.Name, Op: query.OpLike, Value: value}, nil
	}

	attr, err := p.attribute(selector)
	if err != nil {
		return query.Rule{}, err
	}

	switch op {
	case "=in=", "=rng=":
		values, err := p.readValueList()
		if err != nil {
			return query.Rule{}, err
		}
		converted := make([]interface{}, len(values))
		for i, v := range values {
			converted[i], err = convertQueryValue(attr, v)
			if err != nil {
				return query.Rule{}, err
			}
		}
		if op == "=rng=" {
			if len(converted) != 2 {
				return query.Rule{}, data.NewQueryError("Range query on attribute '%s' requires exactly two values", attr.Name)
			}
			return query.Rule{Attr: attr.Name, Op: query.OpRange, Values: converted}, nil
		}
		return query.Rule{Attr: attr.Name, Op: query.OpIn, Values: converted}, nil
	}

	raw, err := p.readValue()
	if err != nil {
		return query.Rule{}, err
	}
	value, err := convertQueryValue(attr, raw)
	if err != nil {
		return query.Rule{}, err
	}

	switch op {
	case "==":
		return query.Rule{Attr: attr.Name, Op: query.OpEqual, Value: value}, nil
	case "!=":
		return query.Rule{Op: query.OpNot, Nested: []query.Rule{{Attr: attr.Name, Op: query.OpEqual, Value: value}}}, nil
	case "=gt=", ">":
		return query.Rule{Attr: attr.Name, Op: query.OpGreater, Value: value}, nil
	case "=ge=", ">=":
		return query.Rule{Attr: attr.Name, Op: query.OpGreaterEqual, Value: value}, nil
	case "=lt=", "<":
		return query.Rule{Attr: attr.Name, Op: query.OpLess, Value: value}, nil
	case "=le=", "<=":
		return query.Rule{Attr: attr.Name, Op: query.OpLessEqual, Value: value}, nil
	case "=like=":
		return query.Rule{Attr: attr.Name, Op: query.OpLike, Value: raw}, nil
	default:
		return query.Rule{}, data.NewQueryError("Unsupported query operator '%s'", op)
	}
}

func (p *rsqlParser) attribute(selector string) (*meta.Attribute, error) {
	attr := resolveAttribute(p.et, selector)
	if attr == nil {
		return nil, data.NewUnknownAttribute(p.et.ID, selector)
	}
	return attr, nil
}

func (p *rsqlParser) readSelector() string {
	start := p.pos
	for !p.done() {
		c := p.peek()
		if c == '=' || c == '!' || c == '<' || c == '>' || c == ';' || c == ',' || c == '(' || c == ')' {
			break
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

func (p *rsqlParser) readOperator() (string, error) {
	if p.done() {
		return "", data.NewQueryError("Expected operator at end of query '%s'", p.input)
	}
	switch p.peek() {
	case '=':
		if p.pos+1 < len(p.input) && p.input[p.pos+1] == '=' {
			p.pos += 2
			return "==", nil
		}
		// =xx= form
		end := strings.IndexByte(p.input[p.pos+1:], '=')
		if end < 0 {
			return "", data.NewQueryError("Malformed operator at position %d in query '%s'", p.pos, p.input)
		}
		op := p.input[p.pos : p.pos+end+2]
		p.pos += end + 2
		return op, nil
	case '!':
		if p.pos+1 < len(p.input) && p.input[p.pos+1] == '=' {
			p.pos += 2
			return "!=", nil
		}
	case '<', '>':
		op := string(p.peek())
		p.pos++
		if !p.done() && p.peek() == '=' {
			op += "="
			p.pos++
		}
		return op, nil
	}
	return "", data.NewQueryError("Malformed operator at position %d in query '%s'", p.pos, p.input)
}

func (p *rsqlParser) readValue() (string, error) {
	if p.done() {
		return "", nil
	}
	if c := p.peek(); c == '\'' || c == '"' {
		quote := c
		p.pos++
		start := p.pos
		for !p.done() && p.peek() != quote {
			p.pos++
		}
		if p.done() {
			return "", data.NewQueryError("Unterminated quoted value in query '%s'", p.input)
		}
		value := p.input[start:p.pos]
		p.pos++
		return value, nil
	}
	start := p.pos
	for !p.done() {
		c := p.peek()
		if c == ';' || c == ',' || c == ')' {
			break
		}
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos]), nil
}

func (p *rsqlParser) readValueList() ([]string, error) {
	if p.done() || p.peek() != '(' {
		return nil, data.NewQueryError("Expected value list at position %d in query '%s'", p.pos, p.input)
	}
	p.pos++
	var values []string
	for {
		value, err := p.readValue()
		if err != nil {
			return nil, err
		}
		values = append(values, value)
		if p.done() {
			return nil, data.NewQueryError("Unterminated value list in query '%s'", p.input)
		}
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if p.peek() == ')' {
			p.pos++
			return values, nil
		}
		return nil, data.NewQueryError("Unexpected character at position %d in query '%s'", p.pos, p.input)
	}
}

// convertQueryValue converts a raw query string to the value space of the
// attribute type
func convertQueryValue(attr *meta.Attribute, raw string) (interface{}, error) {
	switch attr.Type {
	case meta.TypeBool:
		switch strings.ToLower(raw) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, data.NewQueryError("Invalid boolean value '%s' for attribute '%s'", raw, attr.Name)
		}
	case meta.TypeInt, meta.TypeLong:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, data.NewQueryError("Invalid numeric value '%s' for attribute '%s'", raw, attr.Name)
		}
		return v, nil
	case meta.TypeDecimal:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, data.NewQueryError("Invalid decimal value '%s' for attribute '%s'", raw, attr.Name)
		}
		return v, nil
	default:
		return raw, nil
	}
}
