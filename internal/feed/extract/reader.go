package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row is one extract row keyed by its normalized header names.
type Row map[string]string

// bom is the UTF-8 byte order mark some feed exports prepend.
const bom = "\xef\xbb\xbf"

// cleanText strips enclosing quotes, the BOM and surrounding
// whitespace from a field value.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.ReplaceAll(s, bom, "")
	return strings.TrimSpace(s)
}

// normalizeHeader turns a header cell into a field key: cleaned,
// lower-cased, spaces to underscores.
func normalizeHeader(s string) string {
	return strings.ToLower(strings.ReplaceAll(cleanText(s), " ", "_"))
}

// ReadRows parses one extract into header-keyed rows. Rows are zipped
// to the header positionally; trailing cells past the header width are
// dropped, short rows simply omit the missing keys. Malformed rows are
// skipped rather than failing the file.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // variable number of fields
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = normalizeHeader(h)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// best-effort ingest: drop the bad row
			continue
		}

		row := make(Row, len(keys))
		for i, field := range record {
			if i >= len(keys) {
				break
			}
			row[keys[i]] = cleanText(field)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// ReadFile parses the extract at path.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening extract: %w", err)
	}
	defer f.Close()

	return ReadRows(f)
}
