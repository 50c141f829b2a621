package table

// Result is the row set returned by Find together with its paging
// metadata
type Result struct {
	Rows       []*Row
	Page       int
	PageLength int
	Offset     int

	// CalculatedTotal is set when the total comes from a count rather than
	// an estimate
	CalculatedTotal bool

	total int64
}

// Len returns the number of rows
func (r *Result) Len() int {
	return len(r.Rows)
}

// First returns the first row or nil
func (r *Result) First() *Row {
	if len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Match returns the rows the key matches
func (r *Result) Match(k Key) []*Row {
	var out []*Row
	for _, row := range r.Rows {
		if k.Matches(row) {
			out = append(out, row)
		}
	}
	return out
}

// TotalRows returns the total number of rows across all pages. Without a
// calculated total it is estimated from the page: a full page implies at
// least one more.
func (r *Result) TotalRows() int64 {
	if r.CalculatedTotal {
		return r.total
	}
	n := int64(len(r.Rows))
	total := int64(r.Offset) + n
	if r.PageLength > 0 && n == int64(r.PageLength) {
		total += int64(r.PageLength)
	}
	return total
}

// TotalPages returns the number of pages of PageLength rows
func (r *Result) TotalPages() int {
	total := r.TotalRows()
	if r.PageLength <= 0 {
		if total > 0 {
			return 1
		}
		return 0
	}
	return int((total + int64(r.PageLength) - 1) / int64(r.PageLength))
}

// More reports whether pages follow this one
func (r *Result) More() bool {
	page := r.Page
	if page < 1 {
		page = 1
	}
	return page < r.TotalPages()
}

func (r *Result) dedupe() {
	seen := make(map[*Row]struct{}, len(r.Rows))
	out := r.Rows[:0]
	for _, row := range r.Rows {
		if _, ok := seen[row]; ok {
			continue
		}
		seen[row] = struct{}{}
		out = append(out, row)
	}
	r.Rows = out
}
