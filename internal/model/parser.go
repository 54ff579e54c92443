package model

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/sterope-gsa/sterope/internal/gsa"
)

// ErrNoVariables is returned when no line carries a sensitivity annotation
var ErrNoVariables = errors.New("no variables to analyze")

// Mode is the way an annotated parameter is perturbed
type Mode string

const (
	// ModeRange explores the absolute interval [lo, hi]
	ModeRange Mode = "range"
	// ModeFactor explores [nominal·(1−lo), nominal·(1+hi)]
	ModeFactor Mode = "factor"
)

const number = `[-+]?(?:(?:\d*\.\d+)|(?:\d+\.?))(?:[Ee][+-]?\d+)?`

// parameterLine matches `%var: 'name' value // mode[lo hi]`; the comment
// marker may also be '#'
var parameterLine = regexp.MustCompile(`^%\w+: '(\w+)' (` + number + `)\s+(?://|#)\s+(\w+)\[(` + number + `)\s+(` + number + `)\]\s*$`)

// Parameter is an annotated model variable
type Parameter struct {
	Name    string
	Nominal float64
	Mode    Mode
	Lo      float64
	Hi      float64
	// Line is the zero-based line index in the model file
	Line int
}

// Bounds returns the effective exploration interval
func (p *Parameter) Bounds() [2]float64 {
	if p.Mode == ModeFactor {
		return [2]float64{p.Nominal * (1 - p.Lo), p.Nominal * (1 + p.Hi)}
	}
	return [2]float64{p.Lo, p.Hi}
}

// Model is a parsed model file. Lines keep their original text, including
// the line terminator.
type Model struct {
	Path       string
	Lines      []string
	Parameters []*Parameter

	byLine map[int]*Parameter
}

// ParameterAt returns the parameter declared at line i, or nil
func (m *Model) ParameterAt(i int) *Parameter {
	return m.byLine[i]
}

// Problem returns the problem definition in declaration order
func (m *Model) Problem() gsa.Problem {
	p := gsa.Problem{
		Names:  make([]string, len(m.Parameters)),
		Bounds: make([][2]float64, len(m.Parameters)),
	}
	for i, par := range m.Parameters {
		p.Names[i] = par.Name
		p.Bounds[i] = par.Bounds()
	}
	return p
}

// ParseFile reads and parses a model file
func ParseFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model %s: %w", path, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse reads a model and extracts its annotated parameters
func Parse(r io.Reader) (*Model, error) {
	m := &Model{byLine: make(map[int]*Parameter)}
	seen := make(map[string]int)

	br := bufio.NewReader(r)
	for i := 0; ; i++ {
		line, err := br.ReadString('\n')
		if line != "" {
			m.Lines = append(m.Lines, line)
			par, perr := parseParameter(line, i)
			if perr != nil {
				return nil, perr
			}
			if par != nil {
				if prev, dup := seen[par.Name]; dup {
					return nil, fmt.Errorf("line %d: parameter %q already declared at line %d", i+1, par.Name, prev+1)
				}
				seen[par.Name] = i
				m.Parameters = append(m.Parameters, par)
				m.byLine[i] = par
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read model: %w", err)
		}
	}

	if len(m.Parameters) == 0 {
		return nil, fmt.Errorf("%w: check that the annotated variables follow `%%var: 'name' value // range[lo hi]`", ErrNoVariables)
	}
	return m, nil
}

// parseParameter returns nil for a line without an annotation
func parseParameter(line string, i int) (*Parameter, error) {
	match := parameterLine.FindStringSubmatch(line)
	if match == nil {
		return nil, nil
	}

	values := make([]float64, 3)
	for k, s := range []string{match[2], match[4], match[5]} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid number %q: %w", i+1, s, err)
		}
		values[k] = v
	}

	par := &Parameter{
		Name:    match[1],
		Nominal: values[0],
		Mode:    Mode(match[3]),
		Lo:      values[1],
		Hi:      values[2],
		Line:    i,
	}
	switch par.Mode {
	case ModeRange, ModeFactor:
	default:
		return nil, fmt.Errorf("line %d: parameter %q has unknown mode %q (must be range or factor)", i+1, par.Name, par.Mode)
	}
	if b := par.Bounds(); b[0] > b[1] {
		return nil, fmt.Errorf("%w: line %d: parameter %q has lower bound %g above upper bound %g",
			gsa.ErrBounds, i+1, par.Name, b[0], b[1])
	}
	return par, nil
}
