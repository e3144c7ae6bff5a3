package extract

import (
	"strings"
	"testing"
)

func TestReadRows(t *testing.T) {
	in := "route_id,route_short_name,route_long_name\n" +
		"22,22,Palo Alto - Eastridge\n" +
		"523,523,Rapid 523\n"

	rows, err := ReadRows(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["route_id"] != "22" || rows[0]["route_long_name"] != "Palo Alto - Eastridge" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1]["route_short_name"] != "523" {
		t.Errorf("unexpected second row: %v", rows[1])
	}
}

func TestReadRowsNormalizesHeader(t *testing.T) {
	in := bom + "\"Route ID\", Stop Name \n1,Main St\n"

	rows, err := ReadRows(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["route_id"] != "1" {
		t.Errorf("BOM and casing should normalize away, got keys %v", rows[0])
	}
	if rows[0]["stop_name"] != "Main St" {
		t.Errorf("spaces in headers should become underscores, got %v", rows[0])
	}
}

func TestReadRowsStripsQuotes(t *testing.T) {
	in := "stop_id,stop_name\n100,\"1st & \"\"Santa Clara\"\"\"\n"

	rows, err := ReadRows(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rows[0]["stop_name"]; got != "1st & Santa Clara" {
		t.Errorf("quotes should be stripped, got %q", got)
	}
}

func TestReadRowsUnevenWidths(t *testing.T) {
	in := "a,b,c\n" +
		"1,2\n" + // short row omits the missing key
		"1,2,3,4\n" // trailing cell past the header is dropped

	rows, err := ReadRows(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if _, ok := rows[0]["c"]; ok {
		t.Errorf("short row should omit missing columns, got %v", rows[0])
	}
	if rows[1]["c"] != "3" {
		t.Errorf("expected extra cell dropped, got %v", rows[1])
	}
	if len(rows[1]) != 3 {
		t.Errorf("expected 3 keys, got %v", rows[1])
	}
}

func TestReadRowsEmptyInput(t *testing.T) {
	rows, err := ReadRows(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != nil {
		t.Errorf("expected no rows, got %v", rows)
	}
}
