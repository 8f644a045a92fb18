package config

// Config holds daemon-level settings
type Config struct {
	LogLevel        string     `yaml:"log_level"`
	HTTPAddr        string     `yaml:"http_addr"`
	MaxParallelJobs int        `yaml:"max_parallel_jobs"`
	ResultsDB       *ResultsDB `yaml:"results_db,omitempty"`
}

// ResultsDB configures the optional MySQL sink for finished training jobs
type ResultsDB struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// Experiment describes a unit of work for the daemon: either a raw sampling
// request or a combinatorial problem with a training schedule.
type Experiment struct {
	Sample  *SampleSpec  `yaml:"sample,omitempty"`
	Problem *ProblemSpec `yaml:"problem,omitempty"`
	Train   *TrainSpec   `yaml:"train,omitempty"`
}

// SampleSpec describes a direct interferometer sampling request
type SampleSpec struct {
	InputState []int     `yaml:"input_state"`
	Angles     []float64 `yaml:"angles"`
	Samples    int       `yaml:"samples"`
	Seed       int64     `yaml:"seed,omitempty"`
}

// ProblemSpec describes the objective to minimize. Exactly one of QUBO or
// MaxCutEdges must be set.
type ProblemSpec struct {
	Variables   int         `yaml:"variables"`
	QUBO        [][]float64 `yaml:"qubo,omitempty"`
	MaxCutEdges [][]int     `yaml:"maxcut_edges,omitempty"`
}

// TrainSpec describes the variational training schedule
type TrainSpec struct {
	Configurations  int     `yaml:"configurations"`
	Updates         int     `yaml:"updates"`
	SamplesPerPoint int     `yaml:"samples_per_point"`
	LearningRate    float64 `yaml:"learning_rate"`
	PrintFrequency  int     `yaml:"print_frequency"`
	Decoder         string  `yaml:"decoder"`
	Seed            int64   `yaml:"seed,omitempty"`
}

// DefaultConfig returns a Config populated with defaults
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		HTTPAddr:        ":8080",
		MaxParallelJobs: 4,
	}
}

// applyConfigDefaults fills in unset fields
func applyConfigDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.MaxParallelJobs <= 0 {
		cfg.MaxParallelJobs = 4
	}
	if cfg.ResultsDB != nil && cfg.ResultsDB.Table == "" {
		cfg.ResultsDB.Table = "tbi_jobs"
	}
}

// applyTrainDefaults fills in unset training fields
func applyTrainDefaults(train *TrainSpec) {
	if train.Configurations <= 0 {
		train.Configurations = 4
	}
	if train.PrintFrequency <= 0 {
		train.PrintFrequency = 10
	}
	if train.Decoder == "" {
		train.Decoder = "threshold"
	}
}
