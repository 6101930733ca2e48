package signals

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"perp-strategy-lab/internal/domain"
)

// ErrMissingColumn is returned when a required CSV column is absent.
var ErrMissingColumn = errors.New("missing required column")

// Column names of the signal CSV export. tags and confidence are optional.
const (
	colSymbol           = "symbol"
	colTimestamp        = "timestamp"
	colDirection        = "direction"
	colScore            = "score"
	colConfidence       = "confidence"
	colModelProbability = "model_probability"
	colTags             = "tags"
)

// tagSeparator separates indicator tags within the tags column.
const tagSeparator = ";"

// LoadCSV reads signals from a CSV export with a header row.
// Columns are matched by header name in any order; timestamp is Unix ms.
func LoadCSV(r io.Reader) ([]domain.Signal, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colSymbol, colTimestamp, colDirection, colScore, colModelProbability} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	var out []domain.Signal
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}

		sig, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, sig)
	}
}

func parseRecord(record []string, cols map[string]int) (domain.Signal, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	number := func(name string) (float64, error) {
		v := field(name)
		if v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", name, err)
		}
		return f, nil
	}

	sig := domain.Signal{
		Symbol:    field(colSymbol),
		Direction: domain.Direction(strings.ToLower(field(colDirection))),
	}
	if sig.Symbol == "" {
		return sig, fmt.Errorf("empty %s", colSymbol)
	}
	if !sig.Direction.Valid() {
		return sig, fmt.Errorf("invalid direction %q", sig.Direction)
	}

	ts, err := strconv.ParseInt(field(colTimestamp), 10, 64)
	if err != nil {
		return sig, fmt.Errorf("parse %s: %w", colTimestamp, err)
	}
	sig.Timestamp = ts

	if sig.Score, err = number(colScore); err != nil {
		return sig, err
	}
	if sig.Confidence, err = number(colConfidence); err != nil {
		return sig, err
	}
	if sig.ModelProbability, err = number(colModelProbability); err != nil {
		return sig, err
	}

	if tags := field(colTags); tags != "" {
		for _, tag := range strings.Split(tags, tagSeparator) {
			if tag = strings.TrimSpace(tag); tag != "" {
				sig.Tags = append(sig.Tags, tag)
			}
		}
	}
	return sig, nil
}
