package interval

// DefaultMaxDepth is the default number of rows a Layout may use.
const DefaultMaxDepth = 100

// Layout assigns features to display rows so that features sharing a row
// are separated by at least Offset bases.  Features must be placed in
// increasing order of start position.
type Layout struct {
	offset   int
	maxDepth int
	// rowEnds[i] is the end of the last feature placed on row i.
	rowEnds []int
	placed  int
	dropped int
}

// NewLayout creates a Layout.  maxDepth <= 0 selects DefaultMaxDepth.  A
// negative offset is treated as 0.
func NewLayout(offset, maxDepth int) *Layout {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if offset < 0 {
		offset = 0
	}
	return &Layout{offset: offset, maxDepth: maxDepth}
}

// Place returns the lowest row whose last feature ends at least Offset bases
// before start, opening a new row when none qualifies.  It returns false if
// all maxDepth rows are occupied at start; the feature is then counted as
// dropped.
func (l *Layout) Place(start, end int) (row int, ok bool) {
	for row = range l.rowEnds {
		if l.rowEnds[row]+l.offset <= start {
			l.rowEnds[row] = end
			l.placed++
			return row, true
		}
	}
	if len(l.rowEnds) >= l.maxDepth {
		l.dropped++
		return -1, false
	}
	l.rowEnds = append(l.rowEnds, end)
	l.placed++
	return len(l.rowEnds) - 1, true
}

// NumRows returns the number of rows used so far.
func (l *Layout) NumRows() int { return len(l.rowEnds) }

// Placed returns the number of features assigned a row.
func (l *Layout) Placed() int { return l.placed }

// Dropped returns the number of features rejected because maxDepth rows
// were full.
func (l *Layout) Dropped() int { return l.dropped }
