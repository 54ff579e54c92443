package model

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DIN emission modes
const (
	TypeTotal  = "total"
	TypeSliced = "sliced"
)

// DINSpec describes the instrumentation appended to every model variant
type DINSpec struct {
	Type string
	// Syntax is the simulator language version: "4" emits $DIN, "3" emits $FLUX
	Syntax string
	TMin   float64
	TMax   float64

	// sliced mode knobs: window period, window length in beats, first tick
	Beat float64
	Size float64
	Tick float64
}

var precisionFormat = regexp.MustCompile(`^(\d*)([eEfFgG])$`)

// Writer materializes one model file per sample
type Writer struct {
	dir    string
	format string
	din    DINSpec
}

// NewWriter creates a writer emitting files in dir with values rendered at
// the given precision, e.g. "7g"
func NewWriter(dir, precision string, din DINSpec) (*Writer, error) {
	m := precisionFormat.FindStringSubmatch(precision)
	if m == nil {
		return nil, fmt.Errorf("invalid precision %q", precision)
	}
	if din.Syntax != "3" && din.Syntax != "4" {
		return nil, fmt.Errorf("invalid syntax %q", din.Syntax)
	}
	if din.Type != TypeTotal && din.Type != TypeSliced {
		return nil, fmt.Errorf("invalid DIN type %q", din.Type)
	}
	format := "%" + m[2]
	if m[1] != "" {
		format = "%." + m[1] + m[2]
	}
	return &Writer{dir: dir, format: format, din: din}, nil
}

// ModelFile returns the file name of the variant with the given label
func ModelFile(label string) string {
	return "model_" + label + ".kappa"
}

// OutputFile returns the name of the simulator's plot output for a label
func OutputFile(label string) string {
	return "model_" + label + ".out.txt"
}

// Path returns where the variant with the given label is written
func (w *Writer) Path(label string) string {
	return filepath.Join(w.dir, ModelFile(label))
}

// Materialize writes the model variant for one sample and returns its path.
// An existing file is left untouched.
func (w *Writer) Materialize(m *Model, sample []float64, label string) (string, error) {
	path := w.Path(label)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("sample %s: %w", label, err)
	}

	content, err := w.Render(m, sample, label)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("sample %s: failed to write %s: %w", label, path, err)
	}
	return path, nil
}

// Render returns the content of the variant for one sample
func (w *Writer) Render(m *Model, sample []float64, label string) ([]byte, error) {
	if len(sample) != len(m.Parameters) {
		return nil, fmt.Errorf("sample %s: %d values for %d parameters", label, len(sample), len(m.Parameters))
	}
	index := make(map[*Parameter]int, len(m.Parameters))
	for i, p := range m.Parameters {
		index[p] = i
	}

	var buf bytes.Buffer
	for i, line := range m.Lines {
		if p := m.ParameterAt(i); p != nil {
			fmt.Fprintf(&buf, "%%var: '%s' "+w.format+"\n", p.Name, sample[index[p]])
			continue
		}
		buf.WriteString(line)
	}
	if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(w.instrumentation(label))
	return buf.Bytes(), nil
}

func formatTime(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// instrumentation returns the perturbations that make the simulator emit
// the DIN of the sample
func (w *Writer) instrumentation(label string) string {
	if w.din.Type == TypeSliced {
		return w.slicedBlock(label)
	}

	action, end := "$DIN", ";"
	if w.din.Syntax == "3" {
		action, end = "$FLUX", ""
	}
	file := fmt.Sprintf("%q", "flux_"+label+".json")
	var b strings.Builder
	fmt.Fprintf(&b, "%%mod: [T] > %s do %s %s [true]%s\n", formatTime(w.din.TMin), action, file, end)
	fmt.Fprintf(&b, "%%mod: [T] > %s do %s %s [false]%s\n", formatTime(w.din.TMax), action, file, end)
	return b.String()
}

// slicedBlock emits one DIN per window of Size beats, opening a new window
// every Beat time units while the window still ends before the final time
func (w *Writer) slicedBlock(label string) string {
	prefix := fmt.Sprintf("%q", "flux_"+label+".")
	var b strings.Builder
	b.WriteString("\n# sliced dynamic influence network\n")
	fmt.Fprintf(&b, "%%var: 'DIN_beat' %s\n", formatTime(w.din.Beat))
	fmt.Fprintf(&b, "%%var: 'DIN_length' %s\n", formatTime(w.din.Size))
	fmt.Fprintf(&b, "%%var: 'DIN_tick' %s\n", formatTime(w.din.Tick))
	fmt.Fprintf(&b, "%%var: 'DIN_clock' %s\n", formatTime(w.din.TMin))

	if w.din.Syntax == "3" {
		fmt.Fprintf(&b, "%%mod: repeat (([T] > DIN_clock) && (DIN_tick > (DIN_length - 1))) do "+
			"$FLUX %s.(DIN_tick - DIN_length).\".json\" [false] until [false]\n", prefix)
		fmt.Fprintf(&b, "%%mod: repeat ([T] > DIN_clock) do "+
			"$FLUX %s.DIN_tick.\".json\" \"probability\" [true] until ((((DIN_tick + DIN_length) + 1) * DIN_beat) > [Tmax])\n", prefix)
		b.WriteString("%mod: repeat ([T] > DIN_clock) do $UPDATE DIN_clock (DIN_clock + DIN_beat); $UPDATE DIN_tick (DIN_tick + 1) until [false]\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%%mod: ([T] > DIN_clock) && (DIN_tick > (DIN_length - 1)) do "+
		"$DIN %s.(DIN_tick - DIN_length).\".json\" [false]; repeat [true]\n", prefix)
	fmt.Fprintf(&b, "%%mod: [T] > DIN_clock do "+
		"$DIN %s.DIN_tick.\".json\" [true]; repeat ((((DIN_tick + DIN_length) + 1) * DIN_beat) < [Tmax])\n", prefix)
	b.WriteString("%mod: [T] > DIN_clock do $UPDATE 'DIN_clock' (DIN_clock + DIN_beat); $UPDATE 'DIN_tick' (DIN_tick + 1); repeat [true]\n")
	return b.String()
}

// Labels returns the labels of n samples, level1..levelN zero-padded to the
// width of n so that lexicographic order is sample order
func Labels(n int) []string {
	width := len(strconv.Itoa(n))
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("level%0*d", width, i+1)
	}
	return labels
}

// SlicedWindowCount returns the number of windows a sliced simulation is
// expected to emit. Syntax 3 checks its until condition after the window
// fires, so it emits one window more than syntax 4.
func SlicedWindowCount(syntax string, final, beat, size, tick float64) int {
	if beat <= 0 {
		return 0
	}
	const eps = 1e-9
	count := 0
	for t := tick; (t+size+1)*beat <= final+eps; t++ {
		count++
	}
	if syntax == "3" {
		count++
	}
	return count
}
