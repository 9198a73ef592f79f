package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Grid is an in-memory sheet of text cells. Rows may be ragged; missing cells
// read as "". Safe for concurrent use.
type Grid struct {
	mu   sync.RWMutex
	rows [][]string
}

// New returns a grid over rows. The slice is copied.
func New(rows [][]string) *Grid {
	g := &Grid{rows: make([][]string, len(rows))}
	for i, r := range rows {
		g.rows[i] = append([]string(nil), r...)
	}
	return g
}

// Read parses CSV into a grid.
func Read(r io.Reader) (*Grid, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("sheet: read csv: %w", err)
	}
	return &Grid{rows: rows}, nil
}

// Write renders the grid as CSV, padding every row to the widest one.
func (g *Grid) Write(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	width := 0
	for _, r := range g.rows {
		if len(r) > width {
			width = len(r)
		}
	}
	cw := csv.NewWriter(w)
	for _, r := range g.rows {
		rec := make([]string, width)
		copy(rec, r)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("sheet: write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("sheet: write csv: %w", err)
	}
	return nil
}

// Rows returns the number of rows.
func (g *Grid) Rows() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rows)
}

// Cell returns the value at zero-based col, row, or "" outside the grid.
func (g *Grid) Cell(col, row int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if row < 0 || row >= len(g.rows) || col < 0 || col >= len(g.rows[row]) {
		return ""
	}
	return g.rows[row][col]
}

// Set writes a cell, growing the grid as needed.
func (g *Grid) Set(col, row int, value string) {
	if col < 0 || row < 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for len(g.rows) <= row {
		g.rows = append(g.rows, nil)
	}
	for len(g.rows[row]) <= col {
		g.rows[row] = append(g.rows[row], "")
	}
	g.rows[row][col] = value
}

// Resolve returns the text of an A1 reference. Cells outside the grid are "".
func (g *Grid) Resolve(ref string) (string, error) {
	col, row, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	return g.Cell(col, row), nil
}

// ParseRef parses an A1 reference ("B3", "$b$3", "AA10") into zero-based
// column and row.
func ParseRef(ref string) (col, row int, err error) {
	s := strings.ToUpper(strings.TrimSpace(ref))
	i := 0
	if i < len(s) && s[i] == '$' {
		i++
	}
	start := i
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	letters := s[start:i]
	if i < len(s) && s[i] == '$' {
		i++
	}
	digits := s[i:]
	if letters == "" || digits == "" {
		return 0, 0, fmt.Errorf("sheet: invalid cell reference %q", ref)
	}
	col, err = ParseColumn(letters)
	if err != nil {
		return 0, 0, fmt.Errorf("sheet: invalid cell reference %q", ref)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || digits[0] == '+' || digits[0] == '-' {
		return 0, 0, fmt.Errorf("sheet: invalid cell reference %q", ref)
	}
	return col, n - 1, nil
}

// maxColumn is XFD, the last column of common spreadsheet hosts.
const maxColumn = 16384

// ParseColumn parses a column label ("A", "c", "AB") into a zero-based index.
func ParseColumn(label string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if s == "" || len(s) > 3 {
		return 0, fmt.Errorf("sheet: invalid column %q", label)
	}
	n := 0
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("sheet: invalid column %q", label)
		}
		n = n*26 + int(c-'A'+1)
	}
	if n > maxColumn {
		return 0, fmt.Errorf("sheet: column %q out of range", label)
	}
	return n - 1, nil
}

// ColumnName is the inverse of ParseColumn.
func ColumnName(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// Ref builds an A1 reference from zero-based column and row.
func Ref(col, row int) string {
	return ColumnName(col) + strconv.Itoa(row+1)
}
