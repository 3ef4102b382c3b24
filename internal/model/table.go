package model

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// StatRow is one training-table row: the statistic values in column order
// plus the originating parameters carried as trailing columns. Carrying the
// parameters on the row keeps the table self-describing under out-of-order
// completion.
type StatRow struct {
	Values []float64       `json:"values"`
	Params ParameterTriple `json:"params"`
}

// TrainingTable is an append-only collection of (parameters, statistics)
// pairs, one per completed prior draw.
type TrainingTable struct {
	Stats []StatName `json:"stats"`
	Rows  []StatRow  `json:"rows"`
}

func NewTrainingTable(stats []StatName) (*TrainingTable, error) {
	if err := ValidateStats(stats); err != nil {
		return nil, err
	}
	names := make([]StatName, len(stats))
	copy(names, stats)
	return &TrainingTable{Stats: names}, nil
}

// Append adds a completed row. The row must carry exactly one value per
// statistic column and no NaNs.
func (t *TrainingTable) Append(row StatRow) error {
	if len(row.Values) != len(t.Stats) {
		return fmt.Errorf("%w: row has %d values, table has %d statistic columns", ErrValidation, len(row.Values), len(t.Stats))
	}
	for i, v := range row.Values {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: NaN value for %s", ErrDataIntegrity, t.Stats[i])
		}
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Columns returns the flat header: statistic names followed by eta, tau, rho.
func (t *TrainingTable) Columns() []string {
	out := make([]string, 0, len(t.Stats)+3)
	for _, s := range t.Stats {
		out = append(out, string(s))
	}
	return append(out, "eta", "tau", "rho")
}

// Column extracts one statistic column across all rows.
func (t *TrainingTable) Column(name StatName) ([]float64, error) {
	for i, s := range t.Stats {
		if s == name {
			out := make([]float64, len(t.Rows))
			for j, row := range t.Rows {
				out[j] = row.Values[i]
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: statistic %q not in table", ErrValidation, name)
}

// WriteCSV writes the table as a flat named-column CSV.
func (t *TrainingTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("write training table header: %w", err)
	}
	record := make([]string, len(t.Stats)+3)
	for i, row := range t.Rows {
		for j, v := range row.Values {
			record[j] = formatFloat(v)
		}
		record[len(t.Stats)] = formatFloat(row.Params.Eta)
		record[len(t.Stats)+1] = formatFloat(row.Params.Tau)
		record[len(t.Stats)+2] = formatFloat(row.Params.Rho)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write training table row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTrainingTableCSV parses a table previously written by WriteCSV.
func ReadTrainingTableCSV(r io.Reader) (*TrainingTable, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read training table header: %w", err)
	}
	if len(header) < 4 {
		return nil, fmt.Errorf("%w: training table needs at least one statistic column plus eta, tau, rho", ErrValidation)
	}
	if header[len(header)-3] != "eta" || header[len(header)-2] != "tau" || header[len(header)-1] != "rho" {
		return nil, fmt.Errorf("%w: trailing columns must be eta, tau, rho", ErrValidation)
	}
	stats := make([]StatName, len(header)-3)
	for i, name := range header[:len(header)-3] {
		stats[i] = StatName(name)
	}
	table, err := NewTrainingTable(stats)
	if err != nil {
		return nil, err
	}
	rowIndex := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read training table row %d: %w", rowIndex, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, expected %d", ErrValidation, rowIndex, len(record), len(header))
		}
		fields := make([]float64, len(record))
		for i, raw := range record {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %s: %v", ErrValidation, rowIndex, header[i], err)
			}
			fields[i] = v
		}
		row := StatRow{
			Values: fields[:len(stats)],
			Params: ParameterTriple{
				Eta: fields[len(stats)],
				Tau: fields[len(stats)+1],
				Rho: fields[len(stats)+2],
			},
		}
		if err := table.Append(row); err != nil {
			return nil, err
		}
		rowIndex++
	}
	return table, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
