package models

import "time"

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobType distinguishes sampling jobs from training jobs
type JobType string

const (
	JobTypeSample JobType = "sample"
	JobTypeTrain  JobType = "train"
)

// Job represents a sampling or training job submitted to the daemon
type Job struct {
	ID              string    `json:"id"`
	Type            JobType   `json:"type"`
	Status          JobStatus `json:"status"`
	CreatedAtUnixMs int64     `json:"created_at_unix_ms"`
	StartedAtUnixMs int64     `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64     `json:"ended_at_unix_ms,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// SampleResult is the aggregate produced by a sampling job
type SampleResult struct {
	Counts  map[string]int `json:"counts"`
	Samples int            `json:"samples"`
	Modes   int            `json:"modes"`
	Photons int            `json:"photons"`
}

// TrainResult is the outcome of a training job
type TrainResult struct {
	BestBitstring     string               `json:"best_bitstring"`
	BestEnergy        float64              `json:"best_energy"`
	Updates           int                  `json:"updates"`
	DistinctSolutions int                  `json:"distinct_solutions"`
	Energies          map[string][]float64 `json:"energies"`
}

// TrainProgress is a point-in-time view of a running training job
type TrainProgress struct {
	Update     int     `json:"update"`
	BestEnergy float64 `json:"best_energy"`
}

// MetricPoint represents a single metric data point
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Aggregation represents aggregated statistics for a metric
type Aggregation struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}
