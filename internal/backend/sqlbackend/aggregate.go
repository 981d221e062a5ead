package sqlbackend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Aggregate computes a matrix of counts with a GROUP BY over the aggregate
// attributes. Aggregation over multi value reference attributes is not
// supported on this backend.
func (r *Repository) Aggregate(ctx context.Context, aq *query.AggregateQuery) (*query.AggregateResult, error) {
	if aq == nil || (aq.AttrX == "" && aq.AttrY == "") {
		return nil, data.NewQueryError("Aggregate query is missing 'x' or 'y' attribute")
	}
	attrX, attrY := aq.AttrX, aq.AttrY
	if attrX == "" {
		attrX, attrY = attrY, ""
	}

	d := r.engine.dialect
	c := newCompiler(r.et, d)

	xCol, err := c.column(attrX)
	if err != nil {
		return nil, err
	}
	groupCols := []string{xCol}
	selectCols := []string{xCol}
	if attrY != "" {
		yCol, err := c.column(attrY)
		if err != nil {
			return nil, err
		}
		groupCols = append(groupCols, yCol)
		selectCols = append(selectCols, yCol)
	}

	countExpr := "COUNT(*)"
	if aq.AttrDistinct != "" {
		distinctCol, err := c.column(aq.AttrDistinct)
		if err != nil {
			return nil, err
		}
		countExpr = fmt.Sprintf("COUNT(DISTINCT %s)", distinctCol)
	}

	var where string
	if aq.Query != nil {
		where, err = c.where(aq.Query.Rules)
		if err != nil {
			return nil, err
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s, %s FROM %s", strings.Join(selectCols, ", "), countExpr, r.tableName())
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	sb.WriteString(" GROUP BY " + strings.Join(groupCols, ", "))

	rows, err := r.engine.querier(ctx).QueryContext(ctx, sb.String(), c.args...)
	if err != nil {
		return nil, r.wrap("aggregate", err)
	}
	defer rows.Close()

	xAttr := r.et.Attribute(attrX)
	var yAttr *meta.Attribute
	if attrY != "" {
		yAttr = r.et.Attribute(attrY)
	}

	type cell struct {
		x, y  string
		count int64
	}
	var cells []cell
	xSeen := make(map[string]interface{})
	ySeen := make(map[string]interface{})
	for rows.Next() {
		var count int64
		xDest := new(interface{})
		dests := []interface{}{xDest}
		yDest := new(interface{})
		if yAttr != nil {
			dests = append(dests, yDest)
		}
		dests = append(dests, &count)
		if err := rows.Scan(dests...); err != nil {
			return nil, r.wrap("scan", err)
		}
		xVal := normalizeScanned(xAttr, *xDest)
		xKey := fmt.Sprintf("%v", xVal)
		xSeen[xKey] = xVal
		yKey := ""
		if yAttr != nil {
			yVal := normalizeScanned(yAttr, *yDest)
			yKey = fmt.Sprintf("%v", yVal)
			ySeen[yKey] = yVal
		}
		cells = append(cells, cell{x: xKey, y: yKey, count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("aggregate", err)
	}

	xKeys := sortedKeys(xSeen)
	xIndex := make(map[string]int, len(xKeys))
	for i, k := range xKeys {
		xIndex[k] = i
	}
	var yKeys []string
	yIndex := map[string]int{"": 0}
	width := 1
	if yAttr != nil {
		yKeys = sortedKeys(ySeen)
		yIndex = make(map[string]int, len(yKeys))
		for i, k := range yKeys {
			yIndex[k] = i
		}
		width = len(yKeys)
	}

	matrix := make([][]int64, len(xKeys))
	for i := range matrix {
		matrix[i] = make([]int64, width)
	}
	for _, cl := range cells {
		matrix[xIndex[cl.x]][yIndex[cl.y]] = cl.count
	}

	result := &query.AggregateResult{Matrix: matrix}
	for _, k := range xKeys {
		result.XValues = append(result.XValues, xSeen[k])
	}
	for _, k := range yKeys {
		result.YValues = append(result.YValues, ySeen[k])
	}
	return result, nil
}

func sortedKeys(values map[string]interface{}) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
