package din

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var toyRules = []string{"__init__", "A to B", "B to A"}

// writeDIN writes a DIN file whose values are offset by base
func writeDIN(t *testing.T, dir, name string, rules []string, base float64) {
	t.Helper()
	n := len(rules)
	f := File{Rules: rules, Hits: make([]float64, n), Fluxes: make([][]float64, n)}
	for i := 0; i < n; i++ {
		f.Hits[i] = base + float64(i)
		f.Fluxes[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			f.Fluxes[i][j] = base + float64(10*i+j)
		}
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	writeDIN(t, dir, "flux_level1.json", toyRules, 0)

	f, err := ReadFile(filepath.Join(dir, "flux_level1.json"))
	require.NoError(t, err)
	require.Equal(t, []string{"A to B", "B to A"}, f.RuleNames())
	require.Equal(t, []float64{1, 2}, f.HitsVector())
	require.Equal(t, []float64{11, 12, 21, 22}, f.FluxVector())
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "absent.json"), ErrMissingDIN},
		{"not json", write("a.json", "{"), ErrMalformed},
		{"no rules", write("b.json", `{"din_rules":["x"],"din_hits":[0],"din_fluxs":[[0]]}`), ErrMalformed},
		{"short hits", write("c.json", `{"din_rules":["x","r"],"din_hits":[0],"din_fluxs":[[0,0],[0,0]]}`), ErrMalformed},
		{"ragged fluxes", write("d.json", `{"din_rules":["x","r"],"din_hits":[0,1],"din_fluxs":[[0,0],[0]]}`), ErrMalformed},
		{"wrong type", write("e.json", `{"din_rules":["x","r"],"din_hits":"many","din_fluxs":[]}`), ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFile(tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTotal(t *testing.T) {
	dir := t.TempDir()
	labels := []string{"level1", "level2", "level3"}
	for i, label := range labels {
		writeDIN(t, dir, TotalFile(label), toyRules, float64(100*i))
	}

	agg, err := NewAggregator(dir).Total(labels)
	require.NoError(t, err)
	require.Equal(t, "", agg.Window)
	require.Equal(t, []string{"A to B", "B to A"}, agg.Rules)

	r, c := agg.Hits.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 3, c)
	r, c = agg.Fluxes.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 3, c)

	// column n is sample n
	require.Equal(t, []float64{201, 202}, mat.Col(nil, 2, agg.Hits))
	require.Equal(t, []float64{111, 112, 121, 122}, mat.Col(nil, 1, agg.Fluxes))
}

func TestTotalMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeDIN(t, dir, TotalFile("level1"), toyRules, 0)

	_, err := NewAggregator(dir).Total([]string{"level1", "level2"})
	require.ErrorIs(t, err, ErrMissingDIN)
	require.Contains(t, err.Error(), "level2")
}

func TestTotalRuleDrift(t *testing.T) {
	dir := t.TempDir()
	writeDIN(t, dir, TotalFile("level1"), toyRules, 0)
	writeDIN(t, dir, TotalFile("level2"), toyRules, 0)
	writeDIN(t, dir, TotalFile("level3"), []string{"__init__", "B to A", "A to B"}, 0)
	writeDIN(t, dir, TotalFile("level4"), []string{"__init__", "A to C", "B to A"}, 0)

	_, err := NewAggregator(dir).Total([]string{"level1", "level2", "level3", "level4"})
	require.ErrorIs(t, err, ErrRuleMismatch)
	require.Contains(t, err.Error(), "flux_level3.json")
	require.NotContains(t, err.Error(), "flux_level4.json")
}

func TestSliced(t *testing.T) {
	dir := t.TempDir()
	labels := []string{"level1", "level2"}
	for i, label := range labels {
		for _, w := range []string{"0", "1", "2", "10"} {
			writeDIN(t, dir, SlicedFile(label, w), toyRules, float64(100*i))
		}
	}
	// files of other runs and total mode are ignored
	writeDIN(t, dir, TotalFile("level1"), toyRules, 0)
	writeDIN(t, dir, SlicedFile("level9", "0"), toyRules, 0)

	aggs, err := NewAggregator(dir).Sliced(labels)
	require.NoError(t, err)
	require.Len(t, aggs, 4)

	var windows []string
	for _, agg := range aggs {
		windows = append(windows, agg.Window)
		_, c := agg.Hits.Dims()
		require.Equal(t, 2, c)
	}
	require.Equal(t, []string{"0", "1", "2", "10"}, windows)
}

func TestWindows(t *testing.T) {
	dir := t.TempDir()
	for _, w := range []string{"10", "2", "0"} {
		writeDIN(t, dir, SlicedFile("level1", w), toyRules, 0)
	}
	writeDIN(t, dir, SlicedFile("level2", "1"), toyRules, 0)
	writeDIN(t, dir, SlicedFile("level7", "1"), toyRules, 0)
	writeDIN(t, dir, TotalFile("level2"), toyRules, 0)

	got, err := NewAggregator(dir).Windows([]string{"level1", "level2", "level3"})
	require.NoError(t, err)
	want := map[string][]string{
		"level1": {"0", "2", "10"},
		"level2": {"1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Windows mismatch (-want +got):\n%s", diff)
	}

	_, err = NewAggregator(filepath.Join(dir, "missing")).Windows([]string{"level1"})
	require.Error(t, err)
}

func TestSlicedMissingWindow(t *testing.T) {
	dir := t.TempDir()
	for _, w := range []string{"0", "1"} {
		writeDIN(t, dir, SlicedFile("level1", w), toyRules, 0)
	}
	writeDIN(t, dir, SlicedFile("level2", "0"), toyRules, 0)

	_, err := NewAggregator(dir).Sliced([]string{"level1", "level2"})
	require.ErrorIs(t, err, ErrMissingDIN)
	require.Contains(t, err.Error(), "flux_level2.1.json")

	_, err = NewAggregator(t.TempDir()).Sliced([]string{"level1"})
	require.ErrorIs(t, err, ErrMissingDIN)
}

func TestSlicedExtraWindow(t *testing.T) {
	dir := t.TempDir()
	writeDIN(t, dir, SlicedFile("level1", "0"), toyRules, 0)
	writeDIN(t, dir, SlicedFile("level2", "0"), toyRules, 0)
	writeDIN(t, dir, SlicedFile("level2", "1"), toyRules, 0)

	_, err := NewAggregator(dir).Sliced([]string{"level1", "level2"})
	require.ErrorIs(t, err, ErrMissingDIN)
}

func TestParseSlicedName(t *testing.T) {
	tests := []struct {
		name          string
		label, window string
		ok            bool
	}{
		{"flux_level01.3.json", "level01", "3", true},
		{"flux_level01.0.3.json", "level01", "0.3", true},
		{"flux_level01.json", "", "", false},
		{"model_level01.kappa", "", "", false},
		{"flux_level01..json", "", "", false},
	}
	for _, tt := range tests {
		label, window, ok := parseSlicedName(tt.name)
		if ok != tt.ok || label != tt.label || window != tt.window {
			t.Errorf("%s: got (%q, %q, %v)", tt.name, label, window, ok)
		}
	}
}

func TestPairLabelsAndUnflatten(t *testing.T) {
	pairs := PairLabels([]string{"r1", "r2"})
	require.Equal(t, [][2]string{{"r1", "r1"}, {"r1", "r2"}, {"r2", "r1"}, {"r2", "r2"}}, pairs)

	dir := t.TempDir()
	writeDIN(t, dir, "flux_level1.json", []string{"s", "r1", "r2", "r3"}, 0)
	f, err := ReadFile(filepath.Join(dir, "flux_level1.json"))
	require.NoError(t, err)

	m, err := Unflatten(f.FluxVector(), 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			require.Equal(t, f.Fluxes[i+1][j+1], m.At(i, j))
		}
	}

	_, err = Unflatten([]float64{1, 2, 3}, 2)
	require.Error(t, err)
}
