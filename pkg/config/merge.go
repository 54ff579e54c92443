package config

// Merge copies into o every field of src whose command-line flag was set.
// changed reports whether the named flag was given explicitly.
func (o *Options) Merge(src *Options, changed func(name string) bool) {
	if src == nil || changed == nil {
		return
	}
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}

	set("model", func() { o.Model = src.Model })
	set("final", func() { o.Final = src.Final })
	set("steps", func() { o.Steps = src.Steps })
	set("tmin", func() { o.TMin = src.TMin })
	set("tmax", func() {
		v := *src.TMax
		o.TMax = &v
	})
	set("prec", func() { o.Precision = src.Precision })
	set("syntax", func() { o.Syntax = src.Syntax })
	set("kasim", func() { o.Simulator = src.Simulator })
	set("sim-arg", func() { o.SimulatorArgs = append([]string(nil), src.SimulatorArgs...) })
	set("method", func() { o.Method = src.Method })
	set("seed", func() {
		v := *src.Seed
		o.Seed = &v
	})
	set("grid", func() { o.Grid = src.Grid })
	set("nprocs", func() { o.NProcs = src.NProcs })
	set("type", func() { o.Type = src.Type })
	set("tick", func() { o.Tick = src.Tick })
	set("size", func() { o.Size = src.Size })
	set("beat", func() { o.Beat = src.Beat })
	set("workdir", func() { o.WorkDir = src.WorkDir })
	set("results", func() { o.Results = src.Results })
	set("samples", func() { o.Samples = src.Samples })
	set("rawdata", func() { o.RawData = src.RawData })
	set("reports", func() { o.Reports = src.Reports })
	set("workers", func() { o.Workers = append([]string(nil), src.Workers...) })
	set("log-level", func() { o.LogLevel = src.LogLevel })
	set("log-format", func() { o.LogFormat = src.LogFormat })
}
