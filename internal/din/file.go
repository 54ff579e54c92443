package din

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	// ErrMissingDIN is returned when a sample produced no DIN file
	ErrMissingDIN = errors.New("missing DIN file")
	// ErrRuleMismatch is returned when DIN files disagree on the rule names
	ErrRuleMismatch = errors.New("rule names differ between DIN files")
	// ErrMalformed is returned for a DIN file that cannot be decoded
	ErrMalformed = errors.New("malformed DIN file")
)

// File is the dynamic influence network written by the simulator for one
// sample. Position 0 of every list, and row and column 0 of the flux
// matrix, belong to a sentinel entry that is not a rule.
type File struct {
	Rules  []string    `json:"din_rules"`
	Hits   []float64   `json:"din_hits"`
	Fluxes [][]float64 `json:"din_fluxs"`
}

// ReadFile decodes and validates a DIN file
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingDIN, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return &f, nil
}

func (f *File) validate() error {
	n := len(f.Rules)
	if n < 2 {
		return fmt.Errorf("din_rules has %d entries, expected a sentinel and at least one rule", n)
	}
	if len(f.Hits) != n {
		return fmt.Errorf("din_hits has %d entries for %d rules", len(f.Hits), n)
	}
	if len(f.Fluxes) != n {
		return fmt.Errorf("din_fluxs has %d rows for %d rules", len(f.Fluxes), n)
	}
	for i, row := range f.Fluxes {
		if len(row) != n {
			return fmt.Errorf("din_fluxs row %d has %d columns for %d rules", i, len(row), n)
		}
	}
	return nil
}

// RuleNames returns the rule names without the sentinel
func (f *File) RuleNames() []string {
	return f.Rules[1:]
}

// HitsVector returns the hits of every rule without the sentinel
func (f *File) HitsVector() []float64 {
	return f.Hits[1:]
}

// FluxVector returns the rule-to-rule fluxes without the sentinel row and
// column, flattened row-major: the source rule varies slowest
func (f *File) FluxVector() []float64 {
	r := len(f.Rules) - 1
	out := make([]float64, 0, r*r)
	for _, row := range f.Fluxes[1:] {
		out = append(out, row[1:]...)
	}
	return out
}
