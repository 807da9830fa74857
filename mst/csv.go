package mst

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
)

// ParseCSVToEntries parses a `;`-delimited CSV of user rows into entries.
// The file must carry a header with the columns `username` and `balances`;
// the balances column holds one comma-separated non-negative decimal per
// currency, the same count on every row. The returned currency descriptors
// are placeholders, one per balance column.
func ParseCSVToEntries(path string) ([]Cryptocurrency, []Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = ';'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("%s has no entry rows", path)
	}

	header := records[0]
	if len(header) != 2 || header[0] != "username" || header[1] != "balances" {
		return nil, nil, fmt.Errorf("%s has header %v, expected [username balances]", path, header)
	}

	numCurrencies := 0
	entries := make([]Entry, 0, len(records)-1)
	for row, record := range records[1:] {
		if len(record) != 2 {
			return nil, nil, fmt.Errorf("%s row %d has %d columns, expected 2", path, row+1, len(record))
		}
		fields := strings.Split(record[1], ",")
		if numCurrencies == 0 {
			numCurrencies = len(fields)
		} else if len(fields) != numCurrencies {
			return nil, nil, fmt.Errorf("%s row %d has %d balances, expected %d", path, row+1, len(fields), numCurrencies)
		}
		balances := make([]*uint256.Int, len(fields))
		for i, field := range fields {
			balance, err := uint256.FromDecimal(strings.TrimSpace(field))
			if err != nil {
				return nil, nil, fmt.Errorf("%s row %d balance %d: %w", path, row+1, i, err)
			}
			balances[i] = balance
		}
		entry, err := NewEntry(record[0], balances)
		if err != nil {
			return nil, nil, fmt.Errorf("%s row %d: %w", path, row+1, err)
		}
		entries = append(entries, entry)
	}

	return DummyCryptocurrencies(numCurrencies), entries, nil
}
