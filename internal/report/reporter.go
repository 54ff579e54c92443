package report

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sterope-gsa/sterope/internal/din"
	"github.com/sterope-gsa/sterope/internal/gsa"
	"github.com/sterope-gsa/sterope/pkg/logger"
)

// Report families
const (
	FamilyHits   = "DINhits"
	FamilyFluxes = "DINfluxes"
)

// FileName returns the report file name of an index kind. Sliced runs add
// the window id.
func FileName(family, kind, window string) string {
	if window != "" {
		return fmt.Sprintf("report_%s_%s.w%s.txt", family, kind, window)
	}
	return fmt.Sprintf("report_%s_%s.txt", family, kind)
}

// Reporter writes one TSV per family and index kind
type Reporter struct {
	dir    string
	method *gsa.Method
	params []string
	logger *slog.Logger
}

// NewReporter creates a reporter for the parameters of a problem
func NewReporter(dir string, method *gsa.Method, params []string) *Reporter {
	return &Reporter{
		dir:    dir,
		method: method,
		params: params,
		logger: logger.Component("report"),
	}
}

// SetLogger sets the reporter's logger
func (r *Reporter) SetLogger(l *slog.Logger) {
	r.logger = l
}

// table is a report before formatting
type table struct {
	index   []string   // index column headers
	rows    [][]string // index values per row
	columns [][]string // one header row per column level
	values  [][]float64
}

// Write emits the reports of one aggregation and returns the written paths.
// hits has one IndexSet per rule, fluxes one per ordered rule pair.
func (r *Reporter) Write(window string, rules []string, hits, fluxes []gsa.IndexSet) ([]string, error) {
	if len(hits) != len(rules) {
		return nil, fmt.Errorf("report: %d hit results for %d rules", len(hits), len(rules))
	}
	if len(fluxes) != len(rules)*len(rules) {
		return nil, fmt.Errorf("report: %d flux results for %d rule pairs", len(fluxes), len(rules)*len(rules))
	}

	hitRows := make([][]string, len(rules))
	for i, rule := range rules {
		hitRows[i] = []string{rule}
	}
	pairRows := make([][]string, 0, len(fluxes))
	for _, p := range din.PairLabels(rules) {
		pairRows = append(pairRows, []string{p[0], p[1]})
	}

	var paths []string
	for _, family := range []struct {
		name  string
		index []string
		rows  [][]string
		sets  []gsa.IndexSet
		// zeroNaN replaces undefined scalar indices with 0
		zeroNaN bool
	}{
		{FamilyHits, []string{"rules"}, hitRows, hits, false},
		{FamilyFluxes, []string{"1st", "2nd"}, pairRows, fluxes, true},
	} {
		for _, kind := range r.method.Scalar {
			t, err := r.scalarTable(kind, family.sets, family.zeroNaN)
			if err != nil {
				return nil, fmt.Errorf("report %s: %w", family.name, err)
			}
			t.index, t.rows = family.index, family.rows
			path, err := r.writeTable(FileName(family.name, kind, window), t)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
		for _, kind := range r.method.Matrix {
			t, err := r.matrixTable(kind, family.sets)
			if err != nil {
				return nil, fmt.Errorf("report %s: %w", family.name, err)
			}
			t.index, t.rows = family.index, family.rows
			path, err := r.writeTable(FileName(family.name, kind, window), t)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}

	r.logger.Info("Reports written", "window", window, "files", len(paths), "rules", len(rules))
	return paths, nil
}

func (r *Reporter) scalarTable(kind string, sets []gsa.IndexSet, zeroNaN bool) (*table, error) {
	k := len(r.params)
	t := &table{columns: [][]string{r.params}, values: make([][]float64, len(sets))}
	for i, set := range sets {
		v, ok := set.Scalar[kind]
		if !ok || len(v) != k {
			return nil, fmt.Errorf("observation %d: index %s has %d values for %d parameters", i, kind, len(v), k)
		}
		row := make([]float64, k)
		for j, x := range v {
			if zeroNaN && math.IsNaN(x) {
				x = 0
			}
			row[j] = x
		}
		t.values[i] = row
	}
	return t, nil
}

// matrixTable flattens the K×K matrix of every observation row-major; the
// column headers are (param_i, param_j). Undefined cells become 0.
func (r *Reporter) matrixTable(kind string, sets []gsa.IndexSet) (*table, error) {
	k := len(r.params)
	first := make([]string, 0, k*k)
	second := make([]string, 0, k*k)
	for _, a := range r.params {
		for _, b := range r.params {
			first = append(first, a)
			second = append(second, b)
		}
	}

	t := &table{columns: [][]string{first, second}, values: make([][]float64, len(sets))}
	for i, set := range sets {
		m, ok := set.Matrix[kind]
		if !ok {
			return nil, fmt.Errorf("observation %d: index %s is missing", i, kind)
		}
		if rows, cols := m.Dims(); rows != k || cols != k {
			return nil, fmt.Errorf("observation %d: index %s is %dx%d for %d parameters", i, kind, rows, cols, k)
		}
		row := make([]float64, 0, k*k)
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				x := m.At(a, b)
				if math.IsNaN(x) {
					x = 0
				}
				row = append(row, x)
			}
		}
		t.values[i] = row
	}
	return t, nil
}

func (r *Reporter) writeTable(name string, t *table) (string, error) {
	path := filepath.Join(r.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'
	for level, header := range t.columns {
		// index headers go on the first header row only
		record := make([]string, len(t.index), len(t.index)+len(header))
		if level == 0 {
			copy(record, t.index)
		}
		if err := w.Write(append(record, header...)); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write report %s: %w", path, err)
		}
	}
	for i, values := range t.values {
		record := append([]string(nil), t.rows[i]...)
		for _, v := range values {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write report %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close report %s: %w", path, err)
	}
	r.logger.Debug("Report written", "path", path, "rows", len(t.values))
	return path, nil
}
