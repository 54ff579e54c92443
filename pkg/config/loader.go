package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

// ErrConfig marks configuration errors detected before any work starts
var ErrConfig = errors.New("configuration error")

var precisionPattern = regexp.MustCompile(`^\d*[eEfFgG]$`)

// LoadOptions loads an options file
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read options file %s: %v", ErrConfig, path, err)
	}
	opts, err := ParseOptionsYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse options file %s: %w", path, err)
	}
	return opts, nil
}

// Validate checks the options; it does not touch the filesystem
func (o *Options) Validate() error {
	if o.Model == "" {
		return fmt.Errorf("%w: model file is required", ErrConfig)
	}
	if o.Final <= 0 {
		return fmt.Errorf("%w: final time must be positive, got %g", ErrConfig, o.Final)
	}
	if o.Steps <= 0 {
		return fmt.Errorf("%w: plot step must be positive, got %g", ErrConfig, o.Steps)
	}
	if o.TMin < 0 {
		return fmt.Errorf("%w: tmin cannot be negative, got %g", ErrConfig, o.TMin)
	}
	if tmax := o.EffectiveTMax(); tmax < o.TMin {
		return fmt.Errorf("%w: tmax %g is before tmin %g", ErrConfig, tmax, o.TMin)
	}
	if !precisionPattern.MatchString(o.Precision) {
		return fmt.Errorf("%w: invalid precision format %q (e.g. 7g, 6e, 4f)", ErrConfig, o.Precision)
	}
	if o.Syntax != "3" && o.Syntax != "4" {
		return fmt.Errorf("%w: invalid syntax %q (must be 3 or 4)", ErrConfig, o.Syntax)
	}
	if o.Simulator == "" {
		return fmt.Errorf("%w: simulator path is required", ErrConfig)
	}
	if o.Method == "" {
		return fmt.Errorf("%w: method is required", ErrConfig)
	}
	if o.Grid <= 0 {
		return fmt.Errorf("%w: grid must be positive, got %d", ErrConfig, o.Grid)
	}
	if o.NProcs <= 0 {
		return fmt.Errorf("%w: nprocs must be positive, got %d", ErrConfig, o.NProcs)
	}

	switch o.Type {
	case TypeTotal:
	case TypeSliced:
		if o.Beat <= 0 {
			return fmt.Errorf("%w: sliced beat must be positive, got %g", ErrConfig, o.Beat)
		}
		if o.Size < 0 {
			return fmt.Errorf("%w: sliced size cannot be negative, got %g", ErrConfig, o.Size)
		}
		if o.Tick < 0 {
			return fmt.Errorf("%w: sliced tick cannot be negative, got %g", ErrConfig, o.Tick)
		}
	default:
		return fmt.Errorf("%w: invalid type %q (must be total or sliced)", ErrConfig, o.Type)
	}

	for _, name := range []struct{ field, value string }{
		{"workdir", o.WorkDir},
		{"results", o.Results},
		{"samples", o.Samples},
		{"rawdata", o.RawData},
		{"reports", o.Reports},
	} {
		if name.value == "" {
			return fmt.Errorf("%w: %s folder cannot be empty", ErrConfig, name.field)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[o.LogLevel] {
		return fmt.Errorf("%w: invalid log_level: %s (must be debug, info, warn, or error)", ErrConfig, o.LogLevel)
	}
	if o.LogFormat != "text" && o.LogFormat != "json" {
		return fmt.Errorf("%w: invalid log_format: %s (must be text or json)", ErrConfig, o.LogFormat)
	}
	return nil
}

// CheckFiles verifies that the model file can be opened
func (o *Options) CheckFiles() error {
	f, err := os.Open(o.Model)
	if err != nil {
		return fmt.Errorf("%w: the model file %q cannot be opened: %v", ErrConfig, o.Model, err)
	}
	return f.Close()
}
