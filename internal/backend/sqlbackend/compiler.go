package sqlbackend

import (
	"fmt"
	"strings"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// compiler renders the query model to a parameterized WHERE clause
type compiler struct {
	et      *meta.EntityType
	dialect Dialect
	args    []interface{}
}

func newCompiler(et *meta.EntityType, dialect Dialect) *compiler {
	return &compiler{et: et, dialect: dialect}
}

func (c *compiler) bind(value interface{}) string {
	c.args = append(c.args, value)
	return c.dialect.Placeholder(len(c.args))
}

func (c *compiler) column(name string) (string, error) {
	attr := c.et.Attribute(name)
	if attr == nil {
		return "", data.NewUnknownAttribute(c.et.ID, name)
	}
	if attr.Type.IsMultiReference() {
		return "", data.NewQueryError("Query attribute '%s' of entity '%s' is a multi value reference", name, c.et.ID)
	}
	return c.dialect.QuoteIdentifier(attr.Name), nil
}

// where renders the rules joined with AND. An empty rule list yields an
// empty clause.
func (c *compiler) where(rules []query.Rule) (string, error) {
	var parts []string
	for _, rule := range rules {
		part, err := c.rule(rule)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " AND "), nil
}

func (c *compiler) rule(rule query.Rule) (string, error) {
	switch rule.Op {
	case query.OpEqual:
		col, err := c.column(rule.Attr)
		if err != nil {
			return "", err
		}
		if rule.Value == nil {
			return col + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col, c.bind(rule.Value)), nil
	case query.OpIn:
		col, err := c.column(rule.Attr)
		if err != nil {
			return "", err
		}
		if len(rule.Values) == 0 {
			return "1 = 0", nil
		}
		placeholders := make([]string, len(rule.Values))
		for i, v := range rule.Values {
			placeholders[i] = c.bind(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), nil
	case query.OpGreater:
		return c.comparison(rule, ">")
	case query.OpGreaterEqual:
		return c.comparison(rule, ">=")
	case query.OpLess:
		return c.comparison(rule, "<")
	case query.OpLessEqual:
		return c.comparison(rule, "<=")
	case query.OpLike:
		col, err := c.column(rule.Attr)
		if err != nil {
			return "", err
		}
		pattern := fmt.Sprintf("%%%v%%", rule.Value)
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", col, c.bind(pattern)), nil
	case query.OpRange:
		col, err := c.column(rule.Attr)
		if err != nil {
			return "", err
		}
		if len(rule.Values) != 2 {
			return "", data.NewQueryError("Range query on attribute '%s' requires exactly two values", rule.Attr)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, c.bind(rule.Values[0]), c.bind(rule.Values[1])), nil
	case query.OpSearch:
		return c.search(rule)
	case query.OpAnd:
		return c.nested(rule, " AND ")
	case query.OpOr:
		return c.nested(rule, " OR ")
	case query.OpNot:
		if len(rule.Nested) != 1 {
			return "", data.NewQueryError("NOT requires exactly one nested rule")
		}
		inner, err := c.rule(rule.Nested[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", inner), nil
	default:
		return "", data.NewQueryError("Unsupported query operator '%s'", rule.Op)
	}
}

func (c *compiler) comparison(rule query.Rule, op string) (string, error) {
	col, err := c.column(rule.Attr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", col, op, c.bind(rule.Value)), nil
}

func (c *compiler) nested(rule query.Rule, joiner string) (string, error) {
	if len(rule.Nested) == 0 {
		return "", data.NewQueryError("Nested query rule without operands")
	}
	parts := make([]string, len(rule.Nested))
	for i, nested := range rule.Nested {
		part, err := c.rule(nested)
		if err != nil {
			return "", err
		}
		parts[i] = part
	}
	return "(" + strings.Join(parts, joiner) + ")", nil
}

// search renders a free text term as a LIKE across every text-like column
func (c *compiler) search(rule query.Rule) (string, error) {
	pattern := fmt.Sprintf("%%%v%%", rule.Value)
	var parts []string
	for _, attr := range c.et.AtomicAttributes() {
		if attr.Type.IsReference() {
			continue
		}
		switch attr.Type {
		case meta.TypeString, meta.TypeText, meta.TypeEmail, meta.TypeHyperlink,
			meta.TypeEnum, meta.TypeHTML, meta.TypeScript:
			col := c.dialect.QuoteIdentifier(attr.Name)
			parts = append(parts, fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", col, c.bind(pattern)))
		}
	}
	if len(parts) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

// orderBy renders the sort clause, validating attribute names
func (c *compiler) orderBy(s *query.Sort) (string, error) {
	if s == nil || len(s.Orders) == 0 {
		return "", nil
	}
	parts := make([]string, len(s.Orders))
	for i, order := range s.Orders {
		col, err := c.column(order.Attr)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if order.Direction == query.Descending {
			dir = "DESC"
		}
		parts[i] = col + " " + dir
	}
	return strings.Join(parts, ", "), nil
}
