package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sterope-gsa/sterope/internal/gsa"
	"github.com/sterope-gsa/sterope/pkg/config"
)

// ManifestFile is written at the root of every results folder. It can be
// passed back with --config to repeat the run.
const ManifestFile = "run.yaml"

// Manifest records the options and the problem of a run
type Manifest struct {
	config.Options `yaml:",inline"`

	RunID       string          `yaml:"run_id"`
	SampleCount int             `yaml:"sample_count"`
	Problem     []ManifestParam `yaml:"problem"`
}

// ManifestParam is one analyzed parameter
type ManifestParam struct {
	Name   string     `yaml:"name"`
	Bounds [2]float64 `yaml:"bounds,flow"`
}

// ResultsDir returns the folder a successful run is moved into
func (o *Orchestrator) ResultsDir() string {
	return filepath.Join(o.opts.WorkDir, o.opts.Results+"_"+o.runID)
}

// backup moves the artifacts into the results folder, writes the log, the
// manifest and a copy of the model, then zips the folder
func (o *Orchestrator) backup(problem gsa.Problem, seed int64, samples int) (string, string, error) {
	results := o.ResultsDir()
	folders := map[string]string{
		"samples": filepath.Join(results, o.opts.Samples),
		"rawdata": filepath.Join(results, o.opts.RawData),
		"reports": filepath.Join(results, o.opts.Reports),
	}
	if err := os.Mkdir(results, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create results folder: %w", err)
	}
	for _, dir := range folders {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create results folder: %w", err)
		}
	}

	moves := []struct {
		pattern string
		folder  string
	}{
		{"model_*.kappa", folders["samples"]},
		{"flux_*.json", folders["rawdata"]},
		{"model_*.out.txt", folders["rawdata"]},
		{"report_*.txt", folders["reports"]},
	}
	for _, mv := range moves {
		if err := o.moveMatching(mv.pattern, mv.folder); err != nil {
			return "", "", err
		}
	}

	if err := o.writeRunLog(filepath.Join(results, "log_"+o.runID+".txt"), seed, samples); err != nil {
		return "", "", fmt.Errorf("failed to write run log: %w", err)
	}
	if err := o.writeManifest(filepath.Join(results, ManifestFile), problem, samples); err != nil {
		return "", "", fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := copyFile(o.opts.Model, filepath.Join(results, filepath.Base(o.opts.Model))); err != nil {
		return "", "", fmt.Errorf("failed to copy model: %w", err)
	}

	archive := results + ".zip"
	if err := ZipDir(results, archive); err != nil {
		return "", "", fmt.Errorf("failed to archive results: %w", err)
	}
	o.logger.Info("Results archived", "dir", results, "archive", archive)
	return results, archive, nil
}

func (o *Orchestrator) moveMatching(pattern, folder string) error {
	matches, err := filepath.Glob(filepath.Join(o.opts.WorkDir, pattern))
	if err != nil {
		return err
	}
	keep, _ := filepath.Abs(o.opts.Model)
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == keep {
			continue
		}
		if err := os.Rename(path, filepath.Join(folder, filepath.Base(path))); err != nil {
			return fmt.Errorf("failed to move %s: %w", path, err)
		}
	}
	return nil
}

func (o *Orchestrator) writeManifest(path string, problem gsa.Problem, samples int) error {
	m := Manifest{
		Options:     *o.opts,
		RunID:       o.runID,
		SampleCount: samples,
	}
	for i, name := range problem.Names {
		m.Problem = append(m.Problem, ManifestParam{Name: name, Bounds: problem.Bounds[i]})
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ZipDir writes every file under dir into a deflate archive. Entry names
// start with the base name of dir. A failed archive is removed.
func ZipDir(dir, archive string) (err error) {
	f, err := os.Create(archive)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(archive)
		}
	}()

	zw := zip.NewWriter(f)
	parent := filepath.Dir(dir)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate})
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	return zw.Close()
}
