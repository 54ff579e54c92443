package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func parseToy(t *testing.T) *Model {
	t.Helper()
	m, err := Parse(strings.NewReader(twoParameterModel))
	require.NoError(t, err)
	return m
}

func totalSpec(syntax string) DINSpec {
	return DINSpec{Type: TypeTotal, Syntax: syntax, TMin: 0, TMax: 100}
}

func TestRenderTotal(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "7g", totalSpec("4"))
	require.NoError(t, err)

	out, err := w.Render(parseToy(t), []float64{0.123456789, 12.5}, "level07")
	require.NoError(t, err)
	text := string(out)

	require.Contains(t, text, "%var: 'k1' 0.1234568\n")
	require.Contains(t, text, "%var: 'k2' 12.5\n")
	require.Contains(t, text, "%var: 'plain' 3\n")
	require.Contains(t, text, "'A to B' A() -> B() @ 'k1'\n")
	require.True(t, strings.HasSuffix(text,
		"%mod: [T] > 0 do $DIN \"flux_level07.json\" [true];\n"+
			"%mod: [T] > 100 do $DIN \"flux_level07.json\" [false];\n"), text)
}

func TestRenderTotalSyntax3(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "3e", totalSpec("3"))
	require.NoError(t, err)

	out, err := w.Render(parseToy(t), []float64{0.5, 10}, "level1")
	require.NoError(t, err)
	text := string(out)
	require.Contains(t, text, "%var: 'k1' 5.000e-01\n")
	require.Contains(t, text, "%mod: [T] > 0 do $FLUX \"flux_level1.json\" [true]\n")
	require.NotContains(t, text, "$DIN")
	require.NotContains(t, text, "];")
}

func TestRenderSliced(t *testing.T) {
	spec := DINSpec{Type: TypeSliced, Syntax: "3", TMin: 0, TMax: 3, Beat: 0.3, Size: 1, Tick: 0}
	w, err := NewWriter(t.TempDir(), "7g", spec)
	require.NoError(t, err)

	out, err := w.Render(parseToy(t), []float64{0.5, 10}, "level3")
	require.NoError(t, err)
	text := string(out)
	for _, want := range []string{
		"%var: 'DIN_beat' 0.3\n",
		"%var: 'DIN_length' 1\n",
		"%var: 'DIN_tick' 0\n",
		"%var: 'DIN_clock' 0\n",
		`$FLUX "flux_level3.".(DIN_tick - DIN_length).".json" [false]`,
		`$FLUX "flux_level3.".DIN_tick.".json" "probability" [true]`,
		"$UPDATE DIN_clock (DIN_clock + DIN_beat)",
	} {
		require.Contains(t, text, want)
	}
	require.Equal(t, 3, strings.Count(text, "%mod:"))

	w4, err := NewWriter(t.TempDir(), "7g", DINSpec{Type: TypeSliced, Syntax: "4", Beat: 0.3, Size: 1})
	require.NoError(t, err)
	out, err = w4.Render(parseToy(t), []float64{0.5, 10}, "level3")
	require.NoError(t, err)
	require.Contains(t, string(out), `$DIN "flux_level3.".DIN_tick.".json" [true];`)
	require.NotContains(t, string(out), "$FLUX")
}

func TestRenderAddsMissingNewline(t *testing.T) {
	m, err := Parse(strings.NewReader("%var: 'k' 1 // range[0 2]\n%init: 10 A()"))
	require.NoError(t, err)
	w, err := NewWriter(t.TempDir(), "7g", totalSpec("4"))
	require.NoError(t, err)
	out, err := w.Render(m, []float64{1.5}, "level1")
	require.NoError(t, err)
	require.Contains(t, string(out), "%init: 10 A()\n%mod:")
}

func TestRenderSampleMismatch(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "7g", totalSpec("4"))
	require.NoError(t, err)
	_, err = w.Render(parseToy(t), []float64{1}, "level1")
	require.Error(t, err)
}

func TestMaterializeIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "7g", totalSpec("4"))
	require.NoError(t, err)
	m := parseToy(t)

	path, err := w.Materialize(m, []float64{0.5, 10}, "level1")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "model_level1.kappa"), path)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// a second run with other values must not overwrite the variant
	_, err = w.Materialize(m, []float64{0.9, 14}, "level1")
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, first, second)

	// rendering the same sample again gives identical content
	again, err := w.Render(m, []float64{0.5, 10}, "level1")
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestNewWriterValidation(t *testing.T) {
	for _, prec := range []string{"7g", "g", "12e", "4f", "6G"} {
		if _, err := NewWriter(".", prec, totalSpec("4")); err != nil {
			t.Errorf("precision %s: unexpected error %v", prec, err)
		}
	}
	for _, prec := range []string{"", "7", "7x", ".7g"} {
		if _, err := NewWriter(".", prec, totalSpec("4")); err == nil {
			t.Errorf("precision %q: expected error", prec)
		}
	}
	if _, err := NewWriter(".", "7g", totalSpec("5")); err == nil {
		t.Error("expected error for syntax 5")
	}
	if _, err := NewWriter(".", "7g", DINSpec{Type: "window", Syntax: "4"}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestLabels(t *testing.T) {
	require.Equal(t, []string{"level1", "level2", "level3"}, Labels(3))

	labels := Labels(48)
	require.Len(t, labels, 48)
	require.Equal(t, "level01", labels[0])
	require.Equal(t, "level48", labels[47])

	labels = Labels(100)
	require.Equal(t, "level001", labels[0])
	require.Equal(t, "level100", labels[99])
}

func TestSlicedWindowCount(t *testing.T) {
	require.Equal(t, 9, SlicedWindowCount("4", 3.0, 0.3, 1.0, 0.0))
	require.Equal(t, 0, SlicedWindowCount("4", 0.5, 0.3, 1.0, 0.0))
	require.Equal(t, 0, SlicedWindowCount("4", 3.0, 0, 1.0, 0.0))
	require.Equal(t, 5, SlicedWindowCount("4", 10, 1, 5, 0))
}

func TestSlicedWindowCountSyntax3(t *testing.T) {
	tests := []struct {
		final, beat, size, tick float64
		want                    int
	}{
		{3.0, 0.3, 1.0, 0.0, 10},
		{0.5, 0.3, 1.0, 0.0, 1},
		{10, 1, 5, 0, 6},
		{3.0, 0, 1.0, 0.0, 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SlicedWindowCount("3", tt.final, tt.beat, tt.size, tt.tick))
	}
}
