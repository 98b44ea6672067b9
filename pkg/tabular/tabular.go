// Package tabular turns uploaded delimited text into typed row records.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"sinapsisdata/pkg/domain"
)

const maxRecordedErrors = 50

var (
	ErrEmptyInput = errors.New("file is empty")
	ErrNoHeader   = errors.New("file has no header row")

	floatPattern = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
)

// Result is the parsed content of one file.
type Result struct {
	Rows     []domain.Row `json:"rows"`
	Columns  []string     `json:"columns"`
	RowCount int          `json:"rowCount"`
	Errors   []string     `json:"errors,omitempty"`
}

// Parse reads delimited text with a header row. Empty lines are skipped,
// header names are trimmed and made unique, and cell values are typed:
// numeric strings become float64, true/false become bool, empty cells
// become nil. Malformed rows are reported in Result.Errors and kept when
// possible. An error is returned only when the file as a whole is unusable.
func Parse(r io.Reader) (Result, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	sample, _ := br.Peek(4096)
	if len(bytes.TrimSpace(sample)) == 0 {
		return Result{}, ErrEmptyInput
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(sample)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := readHeader(reader)
	if err != nil {
		return Result{}, err
	}
	columns := uniqueColumns(header)

	res := Result{Columns: columns, Rows: make([]domain.Row, 0, 64)}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.addError(fmt.Sprintf("row %d: %v", perr.Line, perr.Err))
				continue
			}
			return Result{}, fmt.Errorf("read rows: %w", err)
		}
		if blankRecord(record) {
			continue
		}
		if len(record) != len(columns) {
			res.addError(fmt.Sprintf("row %d: expected %d fields, got %d", line, len(columns), len(record)))
		}
		row := make(domain.Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = TypeValue(record[i])
			} else {
				row[col] = nil
			}
		}
		res.Rows = append(res.Rows, row)
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// TypeValue applies best-effort dynamic typing to one cell.
func TypeValue(raw string) any {
	switch raw {
	case "":
		return nil
	case "true", "TRUE", "True":
		return true
	case "false", "FALSE", "False":
		return false
	}
	if floatPattern.MatchString(raw) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return f
		}
	}
	return raw
}

func (r *Result) addError(msg string) {
	if len(r.Errors) < maxRecordedErrors {
		r.Errors = append(r.Errors, msg)
	}
}

func readHeader(reader *csv.Reader) ([]string, error) {
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil, ErrNoHeader
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if !blankRecord(record) {
			return record, nil
		}
	}
}

func uniqueColumns(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, 0, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		base := name
		for n := seen[base]; ; n++ {
			if n > 0 {
				name = base + "_" + strconv.Itoa(n)
			}
			if _, dup := seen[name]; !dup {
				seen[base] = n + 1
				break
			}
		}
		seen[name] = 1
		out = append(out, name)
	}
	return out
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sniffDelimiter picks the candidate that splits the first line into the most
// fields, preferring comma on ties.
func sniffDelimiter(sample []byte) rune {
	first := sample
	if i := bytes.IndexAny(sample, "\r\n"); i >= 0 {
		first = sample[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		if c := countOutsideQuotes(first, byte(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

func countOutsideQuotes(line []byte, sep byte) int {
	inQuotes := false
	count := 0
	for _, b := range line {
		switch {
		case b == '"':
			inQuotes = !inQuotes
		case b == sep && !inQuotes:
			count++
		}
	}
	return count
}
