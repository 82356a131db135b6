package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"raid-stats/internal/domain"
	"raid-stats/internal/stream"
)

// RowFields is the number of tab separated columns of a row: x, y, z, w
// and the difficulty index.
const RowFields = 5

var rowFieldNames = [RowFields]string{"x", "y", "z", "w", "difficulty"}

// FormatError reports a row that does not parse into five integers.
type FormatError struct {
	Line  int
	Field string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("export: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("export: line %d: field %s: %v", e.Line, e.Field, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// RowReader parses observation rows from decompressed text.
type RowReader struct {
	cr *csv.Reader
}

func NewRowReader(r io.Reader) *RowReader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return &RowReader{cr: cr}
}

// Next returns the following row, or io.EOF after the last one.
func (rr *RowReader) Next() (domain.RawRow, error) {
	rec, err := rr.cr.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return domain.RawRow{}, &FormatError{Line: perr.Line, Err: perr.Err}
		}
		return domain.RawRow{}, err
	}
	line, _ := rr.cr.FieldPos(0)
	row, err := ParseRow(rec)
	if err != nil {
		var ferr *FormatError
		if errors.As(err, &ferr) {
			ferr.Line = line
		}
		return domain.RawRow{}, err
	}
	return row, nil
}

// ParseRow converts the fields of one row.
func ParseRow(fields []string) (domain.RawRow, error) {
	if len(fields) != RowFields {
		return domain.RawRow{}, &FormatError{Err: fmt.Errorf("got %d fields, want %d", len(fields), RowFields)}
	}
	var v [RowFields]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return domain.RawRow{}, &FormatError{Field: rowFieldNames[i], Err: err}
		}
		v[i] = n
	}
	return domain.RawRow{X: v[0], Y: v[1], Z: v[2], W: v[3], DifficultyIndex: v[4]}, nil
}

// ReadRows decodes, decompresses and parses every row of src. The first
// error aborts the whole read.
func ReadRows(ctx context.Context, src stream.Source) ([]domain.RawRow, error) {
	rc, err := Open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var rows []domain.RawRow
	rr := NewRowReader(rc)
	for {
		row, err := rr.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}
