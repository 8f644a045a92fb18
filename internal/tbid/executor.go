package tbid

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tbi-sim/tbi-core/internal/metrics"
	"github.com/tbi-sim/tbi-core/internal/objective"
	"github.com/tbi-sim/tbi-core/internal/qubo"
	"github.com/tbi-sim/tbi-core/internal/sampler"
	"github.com/tbi-sim/tbi-core/pkg/config"
	"github.com/tbi-sim/tbi-core/pkg/logger"
	"github.com/tbi-sim/tbi-core/pkg/models"
	"github.com/tbi-sim/tbi-core/pkg/utils"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobTerminal  = errors.New("job is terminal")
	ErrJobIDMissing = errors.New("job_id is required")
)

// JobExecutor manages asynchronous job execution and per-job cancellation.
// A semaphore caps how many jobs run concurrently; jobs past the cap stay
// in running state while they wait for a slot.
type JobExecutor struct {
	store    *JobStore
	notifier *Notifier
	sink     *ResultSink
	sem      chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewJobExecutor(store *JobStore, maxParallel int) *JobExecutor {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &JobExecutor{
		store:   store,
		sem:     make(chan struct{}, maxParallel),
		cancels: make(map[string]context.CancelFunc),
	}
}

// WithNotifier enables webhook notifications for finished jobs
func (e *JobExecutor) WithNotifier(n *Notifier) *JobExecutor {
	e.notifier = n
	return e
}

// WithSink enables persisting finished training jobs to MySQL
func (e *JobExecutor) WithSink(s *ResultSink) *JobExecutor {
	e.sink = s
	return e
}

// Start begins executing a job asynchronously.
// Returns the updated job state (running) or an error.
func (e *JobExecutor) Start(jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, ErrJobIDMissing
	}

	rec, ok := e.store.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	switch {
	case rec.Job.Status == models.JobStatusRunning:
		return rec, nil
	case rec.Job.Status.IsTerminal():
		return nil, fmt.Errorf("%w: %s", ErrJobTerminal, jobID)
	}

	updated, err := e.store.SetStatus(jobID, models.JobStatusRunning, "")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if old, exists := e.cancels[jobID]; exists {
		old()
	}
	e.cancels[jobID] = cancel
	e.mu.Unlock()

	go e.runJob(ctx, jobID)
	return updated, nil
}

// Stop requests cancellation for a running job and marks it cancelled
func (e *JobExecutor) Stop(jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, ErrJobIDMissing
	}

	rec, ok := e.store.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if rec.Job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrJobTerminal, jobID)
	}

	e.mu.Lock()
	cancel, ok := e.cancels[jobID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	updated, err := e.store.SetStatus(jobID, models.JobStatusCancelled, "")
	if err != nil {
		return nil, err
	}
	e.finish(updated)
	return updated, nil
}

func (e *JobExecutor) cleanup(jobID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[jobID]; ok {
		cancel()
		delete(e.cancels, jobID)
	}
	e.mu.Unlock()
}

// fail marks the job failed and fires completion hooks
func (e *JobExecutor) fail(jobID, msg string) {
	rec, err := e.store.SetStatus(jobID, models.JobStatusFailed, msg)
	if err != nil {
		logger.Error("failed to set failed status", "job_id", jobID, "error", err)
		return
	}
	e.finish(rec)
}

// finish runs the completion hooks for a terminal job
func (e *JobExecutor) finish(rec *JobRecord) {
	if e.notifier != nil {
		e.notifier.Notify(rec.Input.CallbackURL, rec.Input.CallbackSecret, rec)
	}
	if e.sink != nil && rec.TrainResult != nil {
		if err := e.sink.Store(context.Background(), rec); err != nil {
			logger.Error("failed to persist job result", "job_id", rec.Job.ID, "error", err)
		}
	}
}

func (e *JobExecutor) runJob(ctx context.Context, jobID string) {
	defer e.cleanup(jobID)

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return
	}

	rec, ok := e.store.Get(jobID)
	if !ok {
		logger.Error("job not found", "job_id", jobID)
		return
	}

	exp, err := config.ParseExperimentYAMLString(rec.Input.ExperimentYAML)
	if err != nil {
		logger.Error("failed to parse experiment YAML", "job_id", jobID, "error", err)
		e.fail(jobID, fmt.Sprintf("invalid experiment: %v", err))
		return
	}

	collector := metrics.NewCollector()
	if err := e.store.SetCollector(jobID, collector); err != nil {
		logger.Error("failed to store collector", "job_id", jobID, "error", err)
	}

	if exp.Sample != nil {
		e.runSample(ctx, jobID, exp.Sample)
		return
	}
	e.runTrain(ctx, jobID, exp, collector)
}

func (e *JobExecutor) runSample(ctx context.Context, jobID string, spec *config.SampleSpec) {
	logger.Info("starting sampling job", "job_id", jobID, "samples", spec.Samples)

	counts, err := sampler.Sample(spec.InputState, spec.Angles, spec.Samples, spec.Seed)
	if err != nil {
		logger.Error("sampling failed", "job_id", jobID, "error", err)
		e.fail(jobID, err.Error())
		return
	}
	if ctx.Err() != nil {
		logger.Info("sampling job cancelled", "job_id", jobID)
		return
	}

	result := &models.SampleResult{
		Counts:  counts,
		Samples: spec.Samples,
		Modes:   len(spec.InputState) + 1,
		Photons: utils.SumInts(spec.InputState),
	}
	if err := e.store.SetSampleResult(jobID, result); err != nil {
		logger.Error("failed to set sample result", "job_id", jobID, "error", err)
	}
	e.complete(jobID)
}

func (e *JobExecutor) runTrain(ctx context.Context, jobID string, exp *config.Experiment, collector *metrics.Collector) {
	obj, err := buildObjective(exp.Problem)
	if err != nil {
		logger.Error("failed to build objective", "job_id", jobID, "error", err)
		e.fail(jobID, err.Error())
		return
	}

	trainer, err := qubo.New(exp.Problem.Variables, obj,
		qubo.WithConfigurations(exp.Train.Configurations),
		qubo.WithSeed(exp.Train.Seed),
		qubo.WithDecoder(objective.Decoder(exp.Train.Decoder)),
		qubo.WithMetricsCollector(collector),
		qubo.WithProgressReporter(func(p models.TrainProgress) {
			if err := e.store.SetProgress(jobID, &p); err != nil {
				logger.Error("failed to set progress", "job_id", jobID, "error", err)
			}
		}))
	if err != nil {
		logger.Error("failed to create trainer", "job_id", jobID, "error", err)
		e.fail(jobID, err.Error())
		return
	}

	logger.Info("starting training job",
		"job_id", jobID,
		"variables", exp.Problem.Variables,
		"updates", exp.Train.Updates,
		"configurations", exp.Train.Configurations)

	result, err := trainer.Train(ctx, qubo.Params{
		LearningRate:    exp.Train.LearningRate,
		Updates:         exp.Train.Updates,
		SamplesPerPoint: exp.Train.SamplesPerPoint,
		PrintFrequency:  exp.Train.PrintFrequency,
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("training job cancelled", "job_id", jobID)
			return
		}
		logger.Error("training failed", "job_id", jobID, "error", err)
		e.fail(jobID, err.Error())
		return
	}

	if err := e.store.SetTrainResult(jobID, result); err != nil {
		logger.Error("failed to set train result", "job_id", jobID, "error", err)
	}
	logger.Info("training job finished",
		"job_id", jobID,
		"best_energy", result.BestEnergy,
		"best_bitstring", result.BestBitstring,
		"distinct_solutions", result.DistinctSolutions)
	e.complete(jobID)
}

// complete marks a still-running job completed and fires completion hooks
func (e *JobExecutor) complete(jobID string) {
	rec, ok := e.store.Get(jobID)
	if !ok || rec.Job.Status != models.JobStatusRunning {
		return
	}
	rec, err := e.store.SetStatus(jobID, models.JobStatusCompleted, "")
	if err != nil {
		logger.Error("failed to set completed status", "job_id", jobID, "error", err)
		return
	}
	e.finish(rec)
}

// buildObjective turns a validated problem spec into an Objective
func buildObjective(p *config.ProblemSpec) (objective.Objective, error) {
	if len(p.QUBO) > 0 {
		return objective.NewQUBO(p.QUBO)
	}
	return objective.NewMaxCutQUBO(p.MaxCutEdges, p.Variables)
}
