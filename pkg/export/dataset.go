package export

// Dataset is an ordered table handed to the renderers. Rows are keyed
// by header name; a missing key renders as an empty cell.
type Dataset struct {
	// Title is rendered by formats that carry a heading. CSV output has
	// no place for one and ignores it.
	Title   string
	Headers []string
	Rows    []map[string]string

	// ColumnWeights widens or narrows individual columns in paged
	// output, relative to a default weight of 1. Unlisted headers keep
	// the default.
	ColumnWeights map[string]float64

	// GroupByLeadingColumn blanks a leading-column value repeated on
	// consecutive rows, so grouped tables read as blocks in paged
	// output. Flat formats keep the value on every row.
	GroupByLeadingColumn bool
}
