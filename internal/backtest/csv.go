package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"perp-strategy-lab/internal/domain"
)

// candleColumns is the expected header of a candle CSV export.
var candleColumns = []string{"symbol", "timestamp", "open", "high", "low", "close", "volume"}

// LoadCandlesCSV reads candles grouped by symbol from a CSV with the header
// symbol,timestamp,open,high,low,close,volume (timestamp in Unix ms).
// Each symbol's series is returned in ascending timestamp order.
func LoadCandlesCSV(r io.Reader) (map[string][]domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(candleColumns)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return map[string][]domain.Candle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, want := range candleColumns {
		if got := strings.ToLower(strings.TrimSpace(header[i])); got != want {
			return nil, fmt.Errorf("csv header column %d: expected %q, got %q", i+1, want, got)
		}
	}

	out := make(map[string][]domain.Candle)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		symbol := strings.TrimSpace(record[0])
		if symbol == "" {
			return nil, fmt.Errorf("line %d: empty symbol", line)
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse timestamp: %w", line, err)
		}
		var values [5]float64
		for i := range values {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i+2]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse %s: %w", line, candleColumns[i+2], err)
			}
			values[i] = v
		}

		out[symbol] = append(out[symbol], domain.Candle{
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}

	for _, series := range out {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Timestamp < series[j].Timestamp
		})
	}
	return out, nil
}
