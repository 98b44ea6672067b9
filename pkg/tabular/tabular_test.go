package tabular

import (
	"errors"
	"strings"
	"testing"
)

func TestParseTypesValuesAndTrimsHeaders(t *testing.T) {
	input := "\ufeff name , amount,active,note\n" +
		"Alice,12.5,true,\n" +
		"\n" +
		"Bob,-3,FALSE,hello\n"
	res, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"name", "amount", "active", "note"}
	if strings.Join(res.Columns, "|") != strings.Join(want, "|") {
		t.Fatalf("columns = %v, want %v", res.Columns, want)
	}
	if res.RowCount != 2 || len(res.Rows) != 2 {
		t.Fatalf("rowCount = %d rows = %d", res.RowCount, len(res.Rows))
	}
	first := res.Rows[0]
	if first["name"] != "Alice" {
		t.Fatalf("name = %#v", first["name"])
	}
	if first["amount"] != 12.5 {
		t.Fatalf("amount = %#v", first["amount"])
	}
	if first["active"] != true {
		t.Fatalf("active = %#v", first["active"])
	}
	if first["note"] != nil {
		t.Fatalf("empty cell = %#v, want nil", first["note"])
	}
	if res.Rows[1]["amount"] != float64(-3) || res.Rows[1]["active"] != false {
		t.Fatalf("second row = %#v", res.Rows[1])
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
}

func TestParseSniffsSemicolon(t *testing.T) {
	res, err := Parse(strings.NewReader("region;sales\nnorth;10\nsouth;20\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Columns) != 2 || res.Rows[1]["sales"] != float64(20) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParseDuplicateAndBlankHeaders(t *testing.T) {
	res, err := Parse(strings.NewReader("a,a,,a\n1,2,3,4\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := "a|a_1|column_3|a_2"
	if got := strings.Join(res.Columns, "|"); got != want {
		t.Fatalf("columns = %s, want %s", got, want)
	}
}

func TestParseRecordsRaggedRows(t *testing.T) {
	res, err := Parse(strings.NewReader("a,b,c\n1,2\n4,5,6\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.RowCount != 2 {
		t.Fatalf("rowCount = %d, want ragged row kept", res.RowCount)
	}
	if res.Rows[0]["c"] != nil {
		t.Fatalf("missing cell = %#v", res.Rows[0]["c"])
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want one", res.Errors)
	}
}

func TestParseEmptyInput(t *testing.T) {
	if _, err := Parse(strings.NewReader("  \n\n")); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestTypeValueKeepsNonNumericStrings(t *testing.T) {
	for _, raw := range []string{"NaN", "Inf", "1,000", "0x10", "12abc", "2024-01-05"} {
		if got := TypeValue(raw); got != raw {
			t.Fatalf("TypeValue(%q) = %#v, want string", raw, got)
		}
	}
	if got := TypeValue("1e3"); got != float64(1000) {
		t.Fatalf("TypeValue(1e3) = %#v", got)
	}
	if got := TypeValue(".5"); got != 0.5 {
		t.Fatalf("TypeValue(.5) = %#v", got)
	}
}
