package rest

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ConvertToCSV renders records as a CSV document with a header row.
//
// The column set is the sorted union of all record keys; records missing a
// column produce an empty cell. Values are formatted with their natural Go
// representation (floats without trailing zeros, bools as true/false).
//
// Returns:
//   - string: The CSV text, header first
//   - error: ErrEmptyDataset if records is empty
func ConvertToCSV(records []Record) (string, error) {
	if len(records) == 0 {
		return "", ErrEmptyDataset
	}

	columns := columnUnion(records)

	var buf strings.Builder
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return "", fmt.Errorf("%w: writing header: %w", ErrRequestFailed, err)
	}

	row := make([]string, len(columns))
	for _, record := range records {
		for i, col := range columns {
			value, ok := record[col]
			if !ok {
				row[i] = ""
				continue
			}
			row[i] = formatCell(value)
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("%w: writing row: %w", ErrRequestFailed, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("%w: flushing csv: %w", ErrRequestFailed, err)
	}
	return buf.String(), nil
}

// columnUnion collects every key appearing in any record, sorted for a
// deterministic header.
func columnUnion(records []Record) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		for key := range record {
			seen[key] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

// formatCell renders one value for a CSV cell.
func formatCell(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
