package sheet

import (
	"bytes"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// DefaultMaxBytes is the largest workbook accepted when Options.MaxBytes is 0.
const DefaultMaxBytes = 50 << 20

// oleMagic is the signature of legacy BIFF (.xls) workbooks.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Options configures workbook loading.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	MaxBytes   int64  // 0 means DefaultMaxBytes
}

func (o Options) maxBytes() int64 {
	if o.MaxBytes > 0 {
		return o.MaxBytes
	}
	return DefaultMaxBytes
}

// Open reads one worksheet from an .xlsx file on disk.
func Open(path string, opts Options) (*Worksheet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: stat file")
	}
	if info.Size() > opts.maxBytes() {
		return nil, eris.Errorf("sheet: file is %d bytes, limit is %d", info.Size(), opts.maxBytes())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: read file")
	}
	return ReadBytes(data, opts)
}

// ReadBytes parses one worksheet from an in-memory .xlsx workbook.
func ReadBytes(data []byte, opts Options) (*Worksheet, error) {
	if int64(len(data)) > opts.maxBytes() {
		return nil, eris.Errorf("sheet: file is %d bytes, limit is %d", len(data), opts.maxBytes())
	}
	if bytes.HasPrefix(data, oleMagic) {
		return nil, eris.New("sheet: legacy .xls workbooks are not supported, save the file as .xlsx")
	}

	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open workbook")
	}

	s, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	ws := &Worksheet{Name: s.Name, Rows: make([][]Cell, 0, len(s.Rows))}
	for _, row := range s.Rows {
		ws.Rows = append(ws.Rows, rowToCells(row))
	}
	return ws, nil
}

func getSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		s, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("sheet: sheet %q not found", opts.SheetName)
		}
		return s, nil
	}

	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("sheet: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToCells(row *xlsx.Row) []Cell {
	if row == nil {
		return nil
	}
	cells := make([]Cell, len(row.Cells))
	for j, c := range row.Cells {
		if c == nil {
			continue
		}
		cells[j] = Cell{Text: c.String(), Fill: cellFill(c)}
	}
	return cells
}

// cellFill returns the foreground fill color of a solid/patterned cell.
func cellFill(c *xlsx.Cell) string {
	st := c.GetStyle()
	if st == nil {
		return ""
	}
	if st.Fill.PatternType == "" || st.Fill.PatternType == "none" {
		return ""
	}
	if st.Fill.FgColor != "" {
		return st.Fill.FgColor
	}
	return st.Fill.BgColor
}
