// Package sheet loads spreadsheet worksheets and locates their header row.
package sheet

// Cell is one worksheet cell: its display text and its fill color as an
// ARGB/RGB hex string ("" when the cell has no fill).
type Cell struct {
	Text string
	Fill string
}

// Worksheet is an in-memory grid of cells. Rows may be ragged.
type Worksheet struct {
	Name string
	Rows [][]Cell
}

// Cell returns the cell at (row, col), or the zero Cell when out of range.
func (w *Worksheet) Cell(row, col int) Cell {
	if row < 0 || row >= len(w.Rows) {
		return Cell{}
	}
	r := w.Rows[row]
	if col < 0 || col >= len(r) {
		return Cell{}
	}
	return r[col]
}

// FromStrings builds an unstyled worksheet from plain text rows.
func FromStrings(name string, rows [][]string) *Worksheet {
	ws := &Worksheet{Name: name, Rows: make([][]Cell, len(rows))}
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, v := range row {
			cells[j] = Cell{Text: v}
		}
		ws.Rows[i] = cells
	}
	return ws
}
