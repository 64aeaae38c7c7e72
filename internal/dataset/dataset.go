package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidInput is returned when an upload is not a well-formed table
	ErrInvalidInput = errors.New("invalid dataset")

	// ErrUnknownColumn is returned when a column name is not part of the dataset
	ErrUnknownColumn = errors.New("unknown column")
)

// ColumnType is the inferred storage type of a column
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeDatetime    ColumnType = "datetime"
	TypeCategorical ColumnType = "categorical"
)

// Column is a single named, typed column. Columns are read-only once built.
type Column struct {
	Name string
	Type ColumnType

	cells  []string
	values []float64   // numeric columns only, NaN for missing cells
	times  []time.Time // datetime columns only, zero for missing cells
	layout string
}

// Len returns the number of cells in the column
func (c *Column) Len() int { return len(c.cells) }

// Cell returns the raw text of cell i
func (c *Column) Cell(i int) string { return c.cells[i] }

// Layout returns the time layout shared by every cell of a datetime column
func (c *Column) Layout() string { return c.layout }

// Float returns the numeric value of cell i, or NaN when the column is not
// numeric or the cell is missing.
func (c *Column) Float(i int) float64 {
	if c.Type != TypeNumeric {
		return math.NaN()
	}
	return c.values[i]
}

// Floats returns a copy of the numeric values of the column.
func (c *Column) Floats() ([]float64, error) {
	if c.Type != TypeNumeric {
		return nil, fmt.Errorf("column %q is %s, not numeric", c.Name, c.Type)
	}
	out := make([]float64, len(c.values))
	copy(out, c.values)
	return out, nil
}

// Less orders cell i before cell j using the column's type: numbers
// numerically, datetimes chronologically and everything else lexically.
// Missing cells sort last.
func (c *Column) Less(i, j int) bool {
	mi, mj := c.missing(i), c.missing(j)
	if mi || mj {
		return !mi && mj
	}
	switch c.Type {
	case TypeNumeric:
		return c.values[i] < c.values[j]
	case TypeDatetime:
		return c.times[i].Before(c.times[j])
	default:
		return c.cells[i] < c.cells[j]
	}
}

func (c *Column) missing(i int) bool {
	if isMissing(c.cells[i]) {
		return true
	}
	return c.Type == TypeNumeric && math.IsNaN(c.values[i])
}

// Value returns cell i in its natural Go type for JSON previews:
// float64 for numbers, string otherwise, nil when missing.
func (c *Column) Value(i int) interface{} {
	if isMissing(c.cells[i]) {
		return nil
	}
	if c.Type == TypeNumeric {
		return c.values[i]
	}
	return c.cells[i]
}

// ColumnInfo describes one column of a schema
type ColumnInfo struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is the column metadata of a dataset, in column order
type Schema struct {
	Columns []ColumnInfo `json:"columns"`
	Rows    int          `json:"rows"`
}

// Dataset is an immutable column-typed table
type Dataset struct {
	name    string
	rows    int
	columns []*Column
	index   map[string]int
}

// New builds a dataset from a header and row-major cells, inferring the
// type of every column.
func New(name string, header []string, rows [][]string) (*Dataset, error) {
	return build(name, header, nil, rows)
}

// NewTyped rebuilds a dataset whose column types are already known, as when
// loading a stored document. Cells that do not fit a declared numeric or
// datetime type are rejected.
func NewTyped(name string, header []string, types []ColumnType, rows [][]string) (*Dataset, error) {
	if len(types) != len(header) {
		return nil, fmt.Errorf("%w: %d column types for %d columns", ErrInvalidInput, len(types), len(header))
	}
	return build(name, header, types, rows)
}

func build(name string, header []string, types []ColumnType, rows [][]string) (*Dataset, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrInvalidInput)
	}

	d := &Dataset{
		name:    name,
		rows:    len(rows),
		columns: make([]*Column, len(header)),
		index:   make(map[string]int, len(header)),
	}

	for j, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("%w: column %d has an empty name", ErrInvalidInput, j+1)
		}
		if _, dup := d.index[h]; dup {
			return nil, fmt.Errorf("%w: duplicate column name %q", ErrInvalidInput, h)
		}
		d.index[h] = j

		cells := make([]string, len(rows))
		for i, row := range rows {
			if len(row) != len(header) {
				return nil, fmt.Errorf("%w: row %d has %d fields, expected %d", ErrInvalidInput, i+1, len(row), len(header))
			}
			cells[i] = strings.TrimSpace(row[j])
		}

		col := &Column{Name: h, cells: cells}
		if types == nil {
			col.Type, col.layout = detectType(cells)
		} else {
			col.Type = types[j]
			if col.Type == TypeDatetime {
				col.layout = detectLayout(cells)
				if col.layout == "" {
					return nil, fmt.Errorf("%w: column %q is not a datetime column", ErrInvalidInput, h)
				}
			}
		}
		if err := col.parse(); err != nil {
			return nil, err
		}
		d.columns[j] = col
	}

	return d, nil
}

func (c *Column) parse() error {
	switch c.Type {
	case TypeNumeric:
		c.values = make([]float64, len(c.cells))
		for i, s := range c.cells {
			if isMissing(s) {
				c.values[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("%w: column %q row %d: %q is not numeric", ErrInvalidInput, c.Name, i+1, s)
			}
			c.values[i] = v
		}
	case TypeDatetime:
		c.times = make([]time.Time, len(c.cells))
		for i, s := range c.cells {
			if isMissing(s) {
				continue
			}
			t, err := time.Parse(c.layout, s)
			if err != nil {
				return fmt.Errorf("%w: column %q row %d: %q is not a %s date", ErrInvalidInput, c.Name, i+1, s, c.layout)
			}
			c.times[i] = t
		}
	case TypeCategorical:
	default:
		return fmt.Errorf("%w: column %q has unknown type %q", ErrInvalidInput, c.Name, c.Type)
	}
	return nil
}

// Name returns the original filename of the dataset
func (d *Dataset) Name() string { return d.name }

// Rows returns the number of data rows
func (d *Dataset) Rows() int { return d.rows }

// Columns returns the column names in order
func (d *Dataset) Columns() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Types returns the column types in column order
func (d *Dataset) Types() []ColumnType {
	types := make([]ColumnType, len(d.columns))
	for i, c := range d.columns {
		types[i] = c.Type
	}
	return types
}

// Column looks up a column by name
func (d *Dataset) Column(name string) (*Column, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return d.columns[i], nil
}

// Schema returns the column metadata of the dataset
func (d *Dataset) Schema() Schema {
	s := Schema{Rows: d.rows, Columns: make([]ColumnInfo, len(d.columns))}
	for i, c := range d.columns {
		s.Columns[i] = ColumnInfo{Name: c.Name, Type: c.Type}
	}
	return s
}

// Cells returns a row-major copy of the raw cells
func (d *Dataset) Cells() [][]string {
	out := make([][]string, d.rows)
	for i := range out {
		row := make([]string, len(d.columns))
		for j, c := range d.columns {
			row[j] = c.cells[i]
		}
		out[i] = row
	}
	return out
}

// Records returns up to limit rows as column-name keyed records.
// A limit <= 0 returns every row.
func (d *Dataset) Records(limit int) []map[string]interface{} {
	n := d.rows
	if limit > 0 && limit < n {
		n = limit
	}
	records := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		rec := make(map[string]interface{}, len(d.columns))
		for _, c := range d.columns {
			rec[c.Name] = c.Value(i)
		}
		records[i] = rec
	}
	return records
}
