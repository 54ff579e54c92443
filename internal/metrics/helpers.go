package metrics

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sterope-gsa/sterope/internal/executor"
)

// Metric names
const (
	MetricStageSeconds       = "stage_seconds"
	MetricSimulationSeconds  = "simulation_seconds"
	MetricSimulationFailures = "simulation_failures"
	MetricSamples            = "samples"
	MetricObservations       = "observations"
	MetricReports            = "reports"
	MetricWindows            = "windows"
	MetricWindowsExpected    = "windows_expected"
)

// StageLabels creates a labels map for a pipeline stage
func StageLabels(stage string) map[string]string {
	return map[string]string{"stage": stage}
}

// TimeStage starts timing a stage; the returned function records it
func TimeStage(c *Collector, stage string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		c.Record(MetricStageSeconds, d.Seconds(), start, StageLabels(stage))
		return d
	}
}

// RecordSimulations records the wall time and exit status of every process
func RecordSimulations(c *Collector, results []executor.Result) {
	for _, res := range results {
		labels := map[string]string{"sample": res.Label}
		c.RecordNow(MetricSimulationSeconds, res.Duration.Seconds(), labels)
		if res.Failed() {
			c.RecordNow(MetricSimulationFailures, 1, labels)
		}
	}
}

// RecordWindows records the windows a sliced run produced next to the number
// the simulator was expected to emit
func RecordWindows(c *Collector, expected, found int) {
	c.RecordNow(MetricWindowsExpected, float64(expected), nil)
	c.RecordNow(MetricWindows, float64(found), nil)
}

// WindowMismatch reports whether the recorded windows differ from the
// expected count
func WindowMismatch(c *Collector) bool {
	found, expected := c.Aggregate(MetricWindows), c.Aggregate(MetricWindowsExpected)
	if found == nil || expected == nil {
		return false
	}
	return found.Sum != expected.Sum
}

// StageDuration returns the total time recorded for a stage
func StageDuration(c *Collector, stage string) time.Duration {
	var total float64
	for _, p := range c.Points(MetricStageSeconds, StageLabels(stage)) {
		total += p.Value
	}
	return time.Duration(total * float64(time.Second))
}

// WriteSummary writes a human-readable summary of the run
func WriteSummary(w io.Writer, c *Collector) error {
	lines := []string{fmt.Sprintf("elapsed\t%s", c.Elapsed().Round(time.Millisecond))}
	for _, stage := range c.Stages() {
		lines = append(lines, fmt.Sprintf("stage %s\t%s", stage, StageDuration(c, stage).Round(time.Millisecond)))
	}
	if agg := c.Aggregate(MetricSimulationSeconds); agg != nil {
		lines = append(lines, fmt.Sprintf("simulations\t%d (mean %.3gs, p50 %.3gs, p95 %.3gs, max %.3gs)",
			agg.Count, agg.Mean, agg.P50, agg.P95, agg.Max))
	}
	if agg := c.Aggregate(MetricSimulationFailures); agg != nil {
		lines = append(lines, "failed simulations\t"+strconv.FormatInt(agg.Count, 10))
	}
	for _, name := range []string{MetricSamples, MetricObservations, MetricReports} {
		if agg := c.Aggregate(name); agg != nil {
			lines = append(lines, fmt.Sprintf("%s\t%g", name, agg.Sum))
		}
	}
	if agg := c.Aggregate(MetricWindows); agg != nil {
		line := fmt.Sprintf("windows\t%g", agg.Sum)
		if expected := c.Aggregate(MetricWindowsExpected); expected != nil {
			line += fmt.Sprintf(" (expected %g)", expected.Sum)
		}
		if WindowMismatch(c) {
			line += " mismatch"
		}
		lines = append(lines, line)
	}

	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}
