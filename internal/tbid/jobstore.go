package tbid

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tbi-sim/tbi-core/internal/metrics"
	"github.com/tbi-sim/tbi-core/pkg/models"
	"github.com/tbi-sim/tbi-core/pkg/utils"
)

// JobInput is the immutable submission payload of a job
type JobInput struct {
	ExperimentYAML string
	CallbackURL    string
	CallbackSecret string
}

// JobRecord is the store's view of one job: submission, lifecycle state and
// whichever result the job type produces.
type JobRecord struct {
	Job          *models.Job
	Input        JobInput
	SampleResult *models.SampleResult
	TrainResult  *models.TrainResult
	Progress     *models.TrainProgress
}

// JobStore holds all jobs in memory
type JobStore struct {
	mu         sync.RWMutex
	jobs       map[string]*JobRecord
	collectors map[string]*metrics.Collector
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs:       make(map[string]*JobRecord),
		collectors: make(map[string]*metrics.Collector),
	}
}

func nowUnixMs() int64 {
	return time.Now().UTC().UnixMilli()
}

func (s *JobStore) Create(jobID string, jobType models.JobType, input JobInput) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobID == "" {
		jobID = utils.GenerateJobID()
	}
	if _, exists := s.jobs[jobID]; exists {
		return nil, fmt.Errorf("job already exists: %s", jobID)
	}

	rec := &JobRecord{
		Job: &models.Job{
			ID:              jobID,
			Type:            jobType,
			Status:          models.JobStatusPending,
			CreatedAtUnixMs: nowUnixMs(),
		},
		Input: input,
	}
	s.jobs[jobID] = rec
	return rec, nil
}

func (s *JobStore) Get(jobID string) (*JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[jobID]
	return rec, ok
}

// ListFiltered returns jobs ordered by creation time, newest first, with an
// optional status filter. An empty status matches everything.
func (s *JobStore) ListFiltered(limit, offset int, status models.JobStatus) []*JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	all := make([]*JobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		if status != "" && rec.Job.Status != status {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Job.CreatedAtUnixMs != all[j].Job.CreatedAtUnixMs {
			return all[i].Job.CreatedAtUnixMs > all[j].Job.CreatedAtUnixMs
		}
		return all[i].Job.ID < all[j].Job.ID
	})

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func (s *JobStore) List(limit int) []*JobRecord {
	return s.ListFiltered(limit, 0, "")
}

func (s *JobStore) SetStatus(jobID string, status models.JobStatus, errMsg string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	rec.Job.Status = status
	if errMsg != "" {
		rec.Job.Error = errMsg
	}

	switch status {
	case models.JobStatusRunning:
		if rec.Job.StartedAtUnixMs == 0 {
			rec.Job.StartedAtUnixMs = nowUnixMs()
		}
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		rec.Job.EndedAtUnixMs = nowUnixMs()
	}

	return rec, nil
}

func (s *JobStore) SetSampleResult(jobID string, result *models.SampleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	rec.SampleResult = result
	return nil
}

func (s *JobStore) SetTrainResult(jobID string, result *models.TrainResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	rec.TrainResult = result
	return nil
}

func (s *JobStore) SetProgress(jobID string, progress *models.TrainProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	rec.Progress = progress
	return nil
}

func (s *JobStore) SetCollector(jobID string, collector *metrics.Collector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	s.collectors[jobID] = collector
	return nil
}

func (s *JobStore) GetCollector(jobID string) (*metrics.Collector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	collector, ok := s.collectors[jobID]
	return collector, ok
}
