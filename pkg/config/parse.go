package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseOptionsYAML parses options from YAML bytes on top of the defaults.
// The result is not validated; flags may still override it.
func ParseOptionsYAML(data []byte) (*Options, error) {
	opts := Default()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("%w: failed to parse options yaml: %v", ErrConfig, err)
	}
	opts.Method = strings.ToLower(opts.Method)
	return opts, nil
}

// ApplyEnv fills settings that may come from the environment
func (o *Options) ApplyEnv() {
	if len(o.Workers) == 0 {
		if v := os.Getenv(WorkersEnv); v != "" {
			o.Workers = SplitList(v)
		}
	}
}

// ExpandHome resolves a leading "~/" against the user's home directory
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// SplitList splits a comma-separated list, dropping empty items
func SplitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
