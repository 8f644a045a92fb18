package config

import (
	"fmt"
	"math"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadExperiment loads and parses an experiment file
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment file %s: %w", path, err)
	}
	exp, err := ParseExperimentYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse experiment file %s: %w", path, err)
	}
	return exp, nil
}

// validateConfig performs validation on the daemon configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.MaxParallelJobs <= 0 {
		return fmt.Errorf("max_parallel_jobs must be positive, got %d", cfg.MaxParallelJobs)
	}

	if cfg.ResultsDB != nil {
		if cfg.ResultsDB.DSN == "" {
			return fmt.Errorf("results_db.dsn cannot be empty when results_db is set")
		}
		if cfg.ResultsDB.Table == "" {
			return fmt.Errorf("results_db.table cannot be empty when results_db is set")
		}
	}

	return nil
}

// validateExperiment validates an experiment specification
func validateExperiment(exp *Experiment) error {
	hasSample := exp.Sample != nil
	hasTrain := exp.Train != nil

	if hasSample == hasTrain {
		return fmt.Errorf("exactly one of 'sample' or 'train' must be set")
	}

	if hasSample {
		if exp.Problem != nil {
			return fmt.Errorf("'problem' is only valid with 'train'")
		}
		return validateSample(exp.Sample)
	}

	if exp.Problem == nil {
		return fmt.Errorf("'train' requires a 'problem'")
	}
	if err := validateProblem(exp.Problem); err != nil {
		return fmt.Errorf("problem validation failed: %w", err)
	}
	if err := validateTrain(exp.Train); err != nil {
		return fmt.Errorf("train validation failed: %w", err)
	}
	return nil
}

// validateSample validates a raw sampling request
func validateSample(s *SampleSpec) error {
	if len(s.InputState) == 0 {
		return fmt.Errorf("input_state cannot be empty")
	}
	for i, n := range s.InputState {
		if n < 0 {
			return fmt.Errorf("input_state[%d] cannot be negative, got %d", i, n)
		}
	}
	if len(s.Angles) != len(s.InputState)-1 {
		return fmt.Errorf("angles length must be %d for %d input bins, got %d",
			len(s.InputState)-1, len(s.InputState), len(s.Angles))
	}
	for i, a := range s.Angles {
		if a < 0 || a > math.Pi/2 {
			return fmt.Errorf("angles[%d] must be in [0, pi/2], got %f", i, a)
		}
	}
	if s.Samples <= 0 {
		return fmt.Errorf("samples must be positive, got %d", s.Samples)
	}
	return nil
}

// validateProblem validates the objective description
func validateProblem(p *ProblemSpec) error {
	if p.Variables <= 0 {
		return fmt.Errorf("variables must be positive, got %d", p.Variables)
	}

	hasQUBO := len(p.QUBO) > 0
	hasEdges := len(p.MaxCutEdges) > 0
	if hasQUBO == hasEdges {
		return fmt.Errorf("exactly one of 'qubo' or 'maxcut_edges' must be set")
	}

	if hasQUBO {
		if len(p.QUBO) != p.Variables {
			return fmt.Errorf("qubo must have %d rows, got %d", p.Variables, len(p.QUBO))
		}
		for i, row := range p.QUBO {
			if len(row) != p.Variables {
				return fmt.Errorf("qubo row %d must have %d entries, got %d", i, p.Variables, len(row))
			}
		}
		return nil
	}

	for i, edge := range p.MaxCutEdges {
		if len(edge) != 2 {
			return fmt.Errorf("maxcut_edges[%d] must be a pair, got %d entries", i, len(edge))
		}
		for _, v := range edge {
			if v < 0 || v >= p.Variables {
				return fmt.Errorf("maxcut_edges[%d] references node %d outside [0, %d)", i, v, p.Variables)
			}
		}
		if edge[0] == edge[1] {
			return fmt.Errorf("maxcut_edges[%d] is a self-loop on node %d", i, edge[0])
		}
	}
	return nil
}

// validateTrain validates the training schedule
func validateTrain(t *TrainSpec) error {
	if t.Updates <= 0 {
		return fmt.Errorf("updates must be positive, got %d", t.Updates)
	}
	if t.SamplesPerPoint < 1 {
		return fmt.Errorf("samples_per_point must be at least 1, got %d", t.SamplesPerPoint)
	}
	if t.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", t.LearningRate)
	}
	if t.Configurations <= 0 {
		return fmt.Errorf("configurations must be positive, got %d", t.Configurations)
	}
	validDecoders := map[string]bool{
		"threshold": true,
		"parity":    true,
	}
	if !validDecoders[t.Decoder] {
		return fmt.Errorf("invalid decoder: %s (must be threshold or parity)", t.Decoder)
	}
	return nil
}
