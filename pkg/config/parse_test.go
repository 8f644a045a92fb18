package config

import (
	"strings"
	"testing"
)

func TestParseConfigYAMLDefaults(t *testing.T) {
	cfg, err := ParseConfigYAMLString("{}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log_level info, got %s", cfg.LogLevel)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http_addr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.MaxParallelJobs != 4 {
		t.Fatalf("expected default max_parallel_jobs 4, got %d", cfg.MaxParallelJobs)
	}
}

func TestParseConfigYAMLInvalidLevel(t *testing.T) {
	_, err := ParseConfigYAMLString("log_level: verbose")
	if err == nil || !strings.Contains(err.Error(), "invalid log_level") {
		t.Fatalf("expected invalid log_level error, got %v", err)
	}
}

func TestParseConfigYAMLResultsDB(t *testing.T) {
	cfg, err := ParseConfigYAMLString(`
results_db:
  dsn: user:pass@tcp(localhost:3306)/tbi
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ResultsDB.Table != "tbi_jobs" {
		t.Fatalf("expected default table tbi_jobs, got %s", cfg.ResultsDB.Table)
	}

	_, err = ParseConfigYAMLString("results_db: {table: t}")
	if err == nil || !strings.Contains(err.Error(), "results_db.dsn") {
		t.Fatalf("expected missing dsn error, got %v", err)
	}
}

func TestParseExperimentSample(t *testing.T) {
	exp, err := ParseExperimentYAMLString(`
sample:
  input_state: [1, 1, 1]
  angles: [0.5, 1.0]
  samples: 200
  seed: 7
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp.Sample == nil || exp.Sample.Samples != 200 {
		t.Fatalf("sample spec not parsed: %+v", exp.Sample)
	}
}

func TestParseExperimentSampleInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad angle count",
			yaml: "sample: {input_state: [1, 1], angles: [], samples: 10}",
			want: "angles length",
		},
		{
			name: "negative photons",
			yaml: "sample: {input_state: [1, -1], angles: [0.3], samples: 10}",
			want: "cannot be negative",
		},
		{
			name: "angle out of range",
			yaml: "sample: {input_state: [1, 1], angles: [3.2], samples: 10}",
			want: "must be in [0, pi/2]",
		},
		{
			name: "no samples",
			yaml: "sample: {input_state: [1, 1], angles: [0.3], samples: 0}",
			want: "samples must be positive",
		},
		{
			name: "both sample and train",
			yaml: "sample: {input_state: [1], angles: [], samples: 1}\ntrain: {updates: 1, samples_per_point: 1, learning_rate: 0.1}",
			want: "exactly one",
		},
	}
	for _, tc := range cases {
		_, err := ParseExperimentYAMLString(tc.yaml)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestParseExperimentTrain(t *testing.T) {
	exp, err := ParseExperimentYAMLString(`
problem:
  variables: 5
  maxcut_edges: [[0, 1], [1, 3], [2, 4], [3, 2], [0, 2], [3, 4]]
train:
  updates: 40
  samples_per_point: 20
  learning_rate: 0.05
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp.Train.Configurations != 4 {
		t.Fatalf("expected default configurations 4, got %d", exp.Train.Configurations)
	}
	if exp.Train.Decoder != "threshold" {
		t.Fatalf("expected default decoder threshold, got %s", exp.Train.Decoder)
	}
	if exp.Train.PrintFrequency != 10 {
		t.Fatalf("expected default print_frequency 10, got %d", exp.Train.PrintFrequency)
	}
}

func TestParseExperimentTrainInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "train without problem",
			yaml: "train: {updates: 1, samples_per_point: 1, learning_rate: 0.1}",
			want: "requires a 'problem'",
		},
		{
			name: "qubo shape",
			yaml: "problem: {variables: 3, qubo: [[0, 1], [1, 0]]}\ntrain: {updates: 1, samples_per_point: 1, learning_rate: 0.1}",
			want: "qubo must have 3 rows",
		},
		{
			name: "edge out of range",
			yaml: "problem: {variables: 2, maxcut_edges: [[0, 5]]}\ntrain: {updates: 1, samples_per_point: 1, learning_rate: 0.1}",
			want: "outside [0, 2)",
		},
		{
			name: "self loop",
			yaml: "problem: {variables: 2, maxcut_edges: [[1, 1]]}\ntrain: {updates: 1, samples_per_point: 1, learning_rate: 0.1}",
			want: "self-loop",
		},
		{
			name: "no updates",
			yaml: "problem: {variables: 2, maxcut_edges: [[0, 1]]}\ntrain: {updates: 0, samples_per_point: 1, learning_rate: 0.1}",
			want: "updates must be positive",
		},
		{
			name: "bad decoder",
			yaml: "problem: {variables: 2, maxcut_edges: [[0, 1]]}\ntrain: {updates: 1, samples_per_point: 1, learning_rate: 0.1, decoder: binary}",
			want: "invalid decoder",
		},
		{
			name: "both qubo and edges",
			yaml: "problem: {variables: 2, qubo: [[0, 0], [0, 0]], maxcut_edges: [[0, 1]]}\ntrain: {updates: 1, samples_per_point: 1, learning_rate: 0.1}",
			want: "exactly one of 'qubo'",
		},
	}
	for _, tc := range cases {
		_, err := ParseExperimentYAMLString(tc.yaml)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}
