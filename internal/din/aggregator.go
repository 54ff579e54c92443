package din

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/sterope-gsa/sterope/pkg/logger"
)

// Aggregation holds the observations of every sample: column n of Hits and
// Fluxes belongs to Labels[n]
type Aggregation struct {
	// Window is the window id in sliced mode, empty in total mode
	Window string
	Rules  []string
	Labels []string
	// Hits is R × N
	Hits *mat.Dense
	// Fluxes is R² × N, rows in PairLabels order
	Fluxes *mat.Dense
}

// Aggregator reads DIN files from a directory
type Aggregator struct {
	dir    string
	logger *slog.Logger
}

// NewAggregator creates an aggregator for the DIN files in dir
func NewAggregator(dir string) *Aggregator {
	return &Aggregator{
		dir:    dir,
		logger: logger.Component("din"),
	}
}

// SetLogger sets the aggregator's logger
func (a *Aggregator) SetLogger(l *slog.Logger) {
	a.logger = l
}

// TotalFile returns the DIN file name of a sample in total mode
func TotalFile(label string) string {
	return "flux_" + label + ".json"
}

// SlicedFile returns the DIN file name of one window of a sample
func SlicedFile(label, window string) string {
	return "flux_" + label + "." + window + ".json"
}

// Total reads one DIN file per sample, in label order
func (a *Aggregator) Total(labels []string) (*Aggregation, error) {
	paths := make([]string, len(labels))
	for i, label := range labels {
		paths[i] = filepath.Join(a.dir, TotalFile(label))
	}
	agg, err := a.aggregate(labels, paths)
	if err != nil {
		return nil, err
	}
	a.logger.Info("DIN files aggregated", "files", len(paths), "rules", len(agg.Rules))
	return agg, nil
}

// Windows lists the window ids found for every label, sorted numerically
func (a *Aggregator) Windows(labels []string) (map[string][]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list DIN files in %s: %w", a.dir, err)
	}
	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}

	windows := make(map[string][]string, len(labels))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		label, window, ok := parseSlicedName(e.Name())
		if !ok || !known[label] {
			continue
		}
		windows[label] = append(windows[label], window)
	}
	for label := range windows {
		sortWindows(windows[label])
	}
	return windows, nil
}

// Sliced groups the DIN files by window and aggregates every window
// independently. Every sample must have emitted the same set of windows.
func (a *Aggregator) Sliced(labels []string) ([]*Aggregation, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no samples to aggregate")
	}
	windows, err := a.Windows(labels)
	if err != nil {
		return nil, err
	}

	reference := windows[labels[0]]
	if len(reference) == 0 {
		return nil, fmt.Errorf("%w: no sliced DIN file for sample %s in %s", ErrMissingDIN, labels[0], a.dir)
	}
	for _, label := range labels[1:] {
		got := windows[label]
		for _, w := range reference {
			if !slices.Contains(got, w) {
				return nil, fmt.Errorf("%w: %s", ErrMissingDIN, filepath.Join(a.dir, SlicedFile(label, w)))
			}
		}
		if len(got) != len(reference) {
			return nil, fmt.Errorf("%w: sample %s emitted %d windows, sample %s emitted %d",
				ErrMissingDIN, label, len(got), labels[0], len(reference))
		}
	}

	aggs := make([]*Aggregation, 0, len(reference))
	for _, w := range reference {
		paths := make([]string, len(labels))
		for i, label := range labels {
			paths[i] = filepath.Join(a.dir, SlicedFile(label, w))
		}
		agg, err := a.aggregate(labels, paths)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", w, err)
		}
		agg.Window = w
		aggs = append(aggs, agg)
	}
	a.logger.Info("Sliced DIN files aggregated",
		"windows", len(aggs),
		"files", len(aggs)*len(labels),
		"rules", len(aggs[0].Rules))
	return aggs, nil
}

func (a *Aggregator) aggregate(labels, paths []string) (*Aggregation, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no samples to aggregate")
	}

	var (
		rules  []string
		first  string
		hits   *mat.Dense
		fluxes *mat.Dense
	)
	for n, path := range paths {
		f, err := ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", labels[n], err)
		}
		if rules == nil {
			rules = f.RuleNames()
			first = path
			r := len(rules)
			hits = mat.NewDense(r, len(paths), nil)
			fluxes = mat.NewDense(r*r, len(paths), nil)
		} else if !slices.Equal(rules, f.RuleNames()) {
			return nil, fmt.Errorf("%w: %s does not match %s", ErrRuleMismatch, path, first)
		}
		hits.SetCol(n, f.HitsVector())
		fluxes.SetCol(n, f.FluxVector())
		a.logger.Debug("DIN file read", "label", labels[n], "path", path)
	}

	return &Aggregation{
		Rules:  rules,
		Labels: labels,
		Hits:   hits,
		Fluxes: fluxes,
	}, nil
}

// parseSlicedName splits flux_<label>.<window>.json; labels contain no dot
func parseSlicedName(name string) (label, window string, ok bool) {
	rest, found := strings.CutPrefix(name, "flux_")
	if !found {
		return "", "", false
	}
	label, rest, found = strings.Cut(rest, ".")
	if !found {
		return "", "", false
	}
	window, found = strings.CutSuffix(rest, ".json")
	if !found || window == "" {
		return "", "", false
	}
	return label, window, true
}

// sortWindows orders window ids numerically when they are numbers
func sortWindows(ws []string) {
	sort.SliceStable(ws, func(i, j int) bool {
		a, errA := strconv.ParseFloat(ws[i], 64)
		b, errB := strconv.ParseFloat(ws[j], 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return ws[i] < ws[j]
	})
}

// PairLabels returns the ordered rule pairs matching the rows of Fluxes:
// (r1,r1), (r1,r2), ..., (r1,rR), (r2,r1), ...
func PairLabels(rules []string) [][2]string {
	pairs := make([][2]string, 0, len(rules)*len(rules))
	for _, a := range rules {
		for _, b := range rules {
			pairs = append(pairs, [2]string{a, b})
		}
	}
	return pairs
}

// Unflatten rebuilds the R × R flux matrix of one sample from its column
func Unflatten(col []float64, r int) (*mat.Dense, error) {
	if len(col) != r*r {
		return nil, fmt.Errorf("flux column has %d values, expected %d", len(col), r*r)
	}
	return mat.NewDense(r, r, slices.Clone(col)), nil
}
