package knowledge

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVText renders each data row of a CSV table as one line of
// "column: value" pairs so rows survive chunking as readable text.
func CSVText(r io.Reader) (string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read csv header: %w", err)
	}

	var lines []string
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv row: %w", err)
		}
		pairs := make([]string, 0, len(record))
		for i, val := range record {
			col := fmt.Sprintf("column%d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				col = strings.TrimSpace(header[i])
			}
			pairs = append(pairs, col+": "+strings.TrimSpace(val))
		}
		lines = append(lines, strings.Join(pairs, ", "))
	}
	return strings.Join(lines, "\n"), nil
}
