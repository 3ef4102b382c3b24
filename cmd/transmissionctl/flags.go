package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mpjuers/transmission/internal/prior"
)

// parseTarget reads "name=value" pairs, e.g.
// "fst_mean=0.12,fst_sd=0.03,pi_h=0.8".
func parseTarget(spec string) ([]string, []float64, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil, fmt.Errorf("target is required, e.g. --target fst_mean=0.12,fst_sd=0.03")
	}
	parts := strings.Split(spec, ",")
	names := make([]string, 0, len(parts))
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		name, raw, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, nil, fmt.Errorf("malformed target entry %q, want name=value", part)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("malformed target value in %q: %v", part, err)
		}
		names = append(names, strings.TrimSpace(name))
		values = append(values, v)
	}
	return names, values, nil
}

func parseStatsFlag(spec string) []string {
	var out []string
	for _, s := range strings.Split(spec, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// loadPriorsFile reads a YAML prior specification; an empty path selects the
// built-in defaults.
func loadPriorsFile(path string) (prior.SpecConfig, error) {
	if path == "" {
		return prior.SpecConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return prior.SpecConfig{}, fmt.Errorf("read priors file: %w", err)
	}
	var cfg prior.SpecConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return prior.SpecConfig{}, fmt.Errorf("parse priors file: %w", err)
	}
	return cfg, nil
}

// loadMigrationCSV reads a relative migration matrix from a headerless CSV;
// an empty path selects the uniform island model.
func loadMigrationCSV(path string) ([][]float64, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open migration file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read migration file: %w", err)
	}
	out := make([][]float64, len(records))
	for i, record := range records {
		out[i] = make([]float64, len(record))
		for j, raw := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("migration file row %d column %d: %v", i+1, j+1, err)
			}
			out[i][j] = v
		}
	}
	return out, nil
}
