package sheet

import "strings"

// DefaultScanRows is how many leading rows DetectHeader considers.
const DefaultScanRows = 10

var headerKeywords = []string{
	"company", "deal", "name", "email", "phone", "note", "timezone", "time zone", "stage",
}

// Column describes one non-empty header cell.
type Column struct {
	Index int
	Name  string
	Group Group
}

// Header is the detected header row.
type Header struct {
	Row     int
	Score   int
	Columns []Column
}

// ScoreRow counts the cells whose lower-cased text contains a header keyword.
func ScoreRow(row []Cell) int {
	score := 0
	for _, c := range row {
		text := strings.ToLower(c.Text)
		for _, kw := range headerKeywords {
			if strings.Contains(text, kw) {
				score++
				break
			}
		}
	}
	return score
}

// DetectHeader picks the highest scoring row among the first scanRows rows.
// Ties go to the earliest row. Returns false when no row scores above zero.
func DetectHeader(ws *Worksheet, scanRows int) (*Header, bool) {
	if scanRows <= 0 {
		scanRows = DefaultScanRows
	}

	best, bestScore := -1, 0
	for i := 0; i < len(ws.Rows) && i < scanRows; i++ {
		if s := ScoreRow(ws.Rows[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return nil, false
	}

	h := &Header{Row: best, Score: bestScore}
	for j, c := range ws.Rows[best] {
		name := strings.TrimSpace(c.Text)
		if name == "" {
			continue
		}
		h.Columns = append(h.Columns, Column{Index: j, Name: name, Group: ClassifyFill(c.Fill)})
	}
	return h, true
}
