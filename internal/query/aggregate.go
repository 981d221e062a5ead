package query

// AggregateQuery describes a grouped count over a filtered entity set.
// AttrX is the group-by attribute, AttrY an optional cross-tab attribute and
// AttrDistinct an optional attribute whose distinct values are counted
// instead of rows.
type AggregateQuery struct {
	AttrX        string
	AttrY        string
	AttrDistinct string
	Query        *Query
}

// AggregateResult is a matrix of counts. Matrix[i][j] holds the count for
// XValues[i] crossed with YValues[j]; without a cross-tab attribute every row
// has a single column.
type AggregateResult struct {
	Matrix  [][]int64
	XValues []interface{}
	YValues []interface{}
}
