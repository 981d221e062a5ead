package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Aggregate computes a matrix of counts grouped by the distinct values of
// the x attribute (rows) and, when present, the y attribute (columns).
// When a distinct attribute is set, distinct values of it are counted
// instead of rows.
func (r *Repository) Aggregate(ctx context.Context, aq *query.AggregateQuery) (*query.AggregateResult, error) {
	if aq == nil || (aq.AttrX == "" && aq.AttrY == "") {
		return nil, data.NewQueryError("Aggregate query is missing 'x' or 'y' attribute")
	}
	for _, attr := range []string{aq.AttrX, aq.AttrY, aq.AttrDistinct} {
		if attr != "" && r.entityType.Attribute(attr) == nil {
			return nil, data.NewUnknownAttribute(r.entityType.ID, attr)
		}
	}

	unlock := r.engine.lockRead(ctx)
	matched, err := r.matchAll(ctx, aq.Query)
	unlock()
	if err != nil {
		return nil, err
	}

	// aggregating on y only is a single-row cross-tab
	attrX, attrY := aq.AttrX, aq.AttrY
	if attrX == "" {
		attrX, attrY = attrY, ""
	}

	xIndex := make(map[string]int)
	yIndex := make(map[string]int)
	var xValues, yValues []interface{}
	type cell struct{ x, y int }
	distinct := make(map[cell]map[string]bool)
	counts := make(map[cell]int64)

	for _, entity := range matched {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := entity.Get(attrX)
		xKey := fmt.Sprintf("%v", x)
		xi, ok := xIndex[xKey]
		if !ok {
			xi = len(xValues)
			xIndex[xKey] = xi
			xValues = append(xValues, x)
		}
		yi := 0
		if attrY != "" {
			y := entity.Get(attrY)
			yKey := fmt.Sprintf("%v", y)
			yi, ok = yIndex[yKey]
			if !ok {
				yi = len(yValues)
				yIndex[yKey] = yi
				yValues = append(yValues, y)
			}
		}
		c := cell{xi, yi}
		if aq.AttrDistinct != "" {
			if distinct[c] == nil {
				distinct[c] = make(map[string]bool)
			}
			distinct[c][fmt.Sprintf("%v", entity.Get(aq.AttrDistinct))] = true
		} else {
			counts[c]++
		}
	}

	cols := 1
	if attrY != "" {
		cols = len(yValues)
		if cols == 0 {
			cols = 1
		}
	}
	matrix := make([][]int64, len(xValues))
	for i := range matrix {
		matrix[i] = make([]int64, cols)
		for j := 0; j < cols; j++ {
			c := cell{i, j}
			if aq.AttrDistinct != "" {
				matrix[i][j] = int64(len(distinct[c]))
			} else {
				matrix[i][j] = counts[c]
			}
		}
	}

	result := &query.AggregateResult{Matrix: matrix, XValues: xValues, YValues: yValues}
	sortAggregate(result)
	return result, nil
}

// sortAggregate orders rows (and columns) by the string form of their group
// values so results are stable across runs.
func sortAggregate(result *query.AggregateResult) {
	rowOrder := sortedOrder(result.XValues)
	matrix := make([][]int64, len(rowOrder))
	xValues := make([]interface{}, len(rowOrder))
	for newIdx, oldIdx := range rowOrder {
		matrix[newIdx] = result.Matrix[oldIdx]
		xValues[newIdx] = result.XValues[oldIdx]
	}
	result.Matrix = matrix
	result.XValues = xValues

	if len(result.YValues) > 1 {
		colOrder := sortedOrder(result.YValues)
		yValues := make([]interface{}, len(colOrder))
		for newIdx, oldIdx := range colOrder {
			yValues[newIdx] = result.YValues[oldIdx]
		}
		for i, row := range result.Matrix {
			newRow := make([]int64, len(colOrder))
			for newIdx, oldIdx := range colOrder {
				newRow[newIdx] = row[oldIdx]
			}
			result.Matrix[i] = newRow
		}
		result.YValues = yValues
	}
}

func sortedOrder(values []interface{}) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fmt.Sprintf("%v", values[order[a]]) < fmt.Sprintf("%v", values[order[b]])
	})
	return order
}
