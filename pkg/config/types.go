package config

// Options is the complete configuration of one sensitivity-analysis run.
// It is created once, validated, and then passed explicitly to every stage.
type Options struct {
	// simulation
	Model     string   `yaml:"model"`
	Final     float64  `yaml:"final"`
	Steps     float64  `yaml:"steps"`
	TMin      float64  `yaml:"tmin"`
	TMax      *float64 `yaml:"tmax,omitempty"` // defaults to Final
	Precision string   `yaml:"prec"`
	Syntax    string   `yaml:"syntax"`

	Simulator     string   `yaml:"simulator"`
	SimulatorArgs []string `yaml:"simulator_args,omitempty"`

	// sensitivity analysis
	Method string `yaml:"method"`
	Seed   *int64 `yaml:"seed,omitempty"`
	Grid   int    `yaml:"grid"`
	NProcs int    `yaml:"nprocs"`

	// DIN emission
	Type string  `yaml:"type"` // total or sliced
	Tick float64 `yaml:"tick"`
	Size float64 `yaml:"size"`
	Beat float64 `yaml:"beat"`

	// layout
	WorkDir string `yaml:"workdir"`
	Results string `yaml:"results"`
	Samples string `yaml:"samples"`
	RawData string `yaml:"rawdata"`
	Reports string `yaml:"reports"`

	// distributed execution
	Workers []string `yaml:"workers,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

const (
	TypeTotal  = "total"
	TypeSliced = "sliced"
)

// WorkersEnv names the environment variable listing cluster worker addresses
const WorkersEnv = "STEROPE_WORKERS"

// SlurmPartitionEnv is set by SLURM inside an allocation
const SlurmPartitionEnv = "SLURM_JOB_PARTITION"

// Default returns the options used when neither a file nor a flag sets a value
func Default() *Options {
	return &Options{
		Precision: "7g",
		Syntax:    "4",
		Simulator: "~/bin/kasim4",
		Method:    "sobol",
		Grid:      10,
		NProcs:    1,
		Type:      TypeTotal,
		Tick:      0.0,
		Size:      1.0,
		Beat:      0.3,
		WorkDir:   ".",
		Results:   "results",
		Samples:   "samples",
		RawData:   "simulations",
		Reports:   "reports",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// EffectiveTMax returns the time at which DIN emission stops
func (o *Options) EffectiveTMax() float64 {
	if o.TMax != nil {
		return *o.TMax
	}
	return o.Final
}
