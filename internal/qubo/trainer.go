// Package qubo trains the interferometer's angle parameters so that decoded
// output samples concentrate on low-energy solutions of a QUBO objective.
//
// The trainer runs several parameter configurations in parallel. Each
// configuration owns an all-ones input train and an angle vector; per update
// it draws a batch of scored samples, decodes and evaluates them, and applies
// a score-function gradient step with the batch mean energy as baseline.
package qubo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/tbi-sim/tbi-core/internal/metrics"
	"github.com/tbi-sim/tbi-core/internal/objective"
	"github.com/tbi-sim/tbi-core/internal/sampler"
	"github.com/tbi-sim/tbi-core/pkg/logger"
	"github.com/tbi-sim/tbi-core/pkg/models"
	"github.com/tbi-sim/tbi-core/pkg/utils"
)

// ErrInvalidParameter reports malformed trainer arguments
var ErrInvalidParameter = errors.New("invalid parameter")

// Params holds the knobs for a single Train run
type Params struct {
	LearningRate    float64
	Updates         int
	SamplesPerPoint int
	// PrintFrequency controls progress logging; every PrintFrequency-th
	// update is logged. Zero disables logging.
	PrintFrequency int
}

// ProgressReporter receives a snapshot after every completed update
type ProgressReporter func(models.TrainProgress)

// paramConfig is one independently trained parameter configuration
type paramConfig struct {
	label  string
	input  []int
	angles []float64
}

// batchOutcome is the result of one configuration's update step
type batchOutcome struct {
	meanEnergy float64
	energies   map[string]float64
}

// Trainer optimizes interferometer angles against an Objective
type Trainer struct {
	m         int
	objective objective.Objective
	decoder   objective.Decoder
	seed      int64
	reporter  ProgressReporter
	collector *metrics.Collector
	configs   []*paramConfig

	mu         sync.RWMutex
	res        map[string]float64
	energies   map[string][]float64
	bestKey    string
	bestEnergy float64
	haveBest   bool
}

// Option customizes a Trainer
type Option func(*options)

type options struct {
	configurations int
	seed           int64
	decoder        objective.Decoder
	reporter       ProgressReporter
	collector      *metrics.Collector
}

// WithConfigurations sets how many parameter configurations train in parallel
func WithConfigurations(k int) Option {
	return func(o *options) { o.configurations = k }
}

// WithSeed makes angle initialization and sampling deterministic. A zero
// seed keeps both independent per run.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// WithDecoder sets the configuration-to-bits decoding rule
func WithDecoder(d objective.Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// WithProgressReporter registers a callback invoked after every update
func WithProgressReporter(r ProgressReporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithMetricsCollector records per-configuration training metrics
func WithMetricsCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// New creates a trainer for an m-variable objective. Configuration k uses an
// all-ones input train of length m+k-1, so the shortest train still yields m
// decodable output modes while longer trains explore deeper loop occupation.
func New(m int, obj objective.Objective, opts ...Option) (*Trainer, error) {
	if m <= 0 {
		return nil, fmt.Errorf("%w: variable count must be positive, got %d", ErrInvalidParameter, m)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: objective is required", ErrInvalidParameter)
	}

	o := options{
		configurations: 4,
		decoder:        objective.DecoderThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.configurations <= 0 {
		return nil, fmt.Errorf("%w: configuration count must be positive, got %d", ErrInvalidParameter, o.configurations)
	}
	if _, err := objective.ParseDecoder(string(o.decoder)); err != nil {
		return nil, err
	}

	rng := utils.NewRandSource(o.seed)
	configs := make([]*paramConfig, o.configurations)
	for k := 1; k <= o.configurations; k++ {
		n := m + k - 1
		input := make([]int, n)
		for i := range input {
			input[i] = 1
		}
		angles := make([]float64, n-1)
		for i := range angles {
			angles[i] = rng.UniformFloat64(0, math.Pi/2)
		}
		configs[k-1] = &paramConfig{
			label:  fmt.Sprintf("config%d", k),
			input:  input,
			angles: angles,
		}
	}

	return &Trainer{
		m:         m,
		objective: obj,
		decoder:   o.decoder,
		seed:      o.seed,
		reporter:  o.reporter,
		collector: o.collector,
		configs:   configs,
		res:       make(map[string]float64),
		energies:  make(map[string][]float64),
	}, nil
}

// Train runs the optimization loop. It stops early when ctx is cancelled;
// results accumulated so far stay readable through Res, Energies and Best.
func (t *Trainer) Train(ctx context.Context, params Params) (*models.TrainResult, error) {
	if params.Updates <= 0 {
		return nil, fmt.Errorf("%w: updates must be positive, got %d", ErrInvalidParameter, params.Updates)
	}
	if params.SamplesPerPoint < 1 {
		return nil, fmt.Errorf("%w: samples_per_point must be at least 1, got %d", ErrInvalidParameter, params.SamplesPerPoint)
	}
	if params.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: learning rate must be positive, got %f", ErrInvalidParameter, params.LearningRate)
	}

	for update := 1; update <= params.Updates; update++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcomes := make([]*batchOutcome, len(t.configs))
		errs := make([]error, len(t.configs))

		p := pool.New().WithMaxGoroutines(len(t.configs))
		for ci, cfg := range t.configs {
			p.Go(func() {
				outcomes[ci], errs[ci] = t.step(cfg, update, ci, params)
			})
		}
		p.Wait()

		for _, err := range errs {
			if err != nil {
				return nil, err
			}
		}

		// Merge in config order so ties resolve the same way every run
		now := time.Now()
		t.mu.Lock()
		for ci, out := range outcomes {
			cfg := t.configs[ci]
			t.energies[cfg.label] = append(t.energies[cfg.label], out.meanEnergy)
			for key, e := range out.energies {
				t.res[key] = e
				if !t.haveBest || e < t.bestEnergy {
					t.bestEnergy = e
					t.bestKey = key
					t.haveBest = true
				}
			}
		}
		best := t.bestEnergy
		t.mu.Unlock()

		if t.collector != nil {
			for ci, out := range outcomes {
				labels := map[string]string{"config": t.configs[ci].label}
				t.collector.Record(metrics.MetricBatchMeanEnergy, out.meanEnergy, now, labels)
				t.collector.Record(metrics.MetricBestEnergy, best, now, labels)
			}
		}
		if t.reporter != nil {
			t.reporter(models.TrainProgress{Update: update, BestEnergy: best})
		}
		if params.PrintFrequency > 0 && update%params.PrintFrequency == 0 {
			logger.Info("training update",
				"update", update,
				"best_energy", best,
				"configurations", len(t.configs))
		}
	}

	return t.result(params.Updates), nil
}

// step runs one gradient update for a single configuration
func (t *Trainer) step(cfg *paramConfig, update, ci int, params Params) (*batchOutcome, error) {
	draws, err := sampler.SampleScored(cfg.input, cfg.angles, params.SamplesPerPoint, t.stepSeed(ci, update))
	if err != nil {
		return nil, err
	}

	energies := make([]float64, len(draws))
	table := make(map[string]float64, len(draws))
	for i, d := range draws {
		bits, err := objective.DecodeBits(d.Config, t.m, t.decoder)
		if err != nil {
			return nil, err
		}
		e, err := t.objective.Evaluate(bits)
		if err != nil {
			return nil, fmt.Errorf("objective evaluation failed: %w", err)
		}
		energies[i] = e
		table[objective.BitsKey(bits)] = e
	}

	// Score-function gradient with the batch mean as baseline
	baseline := utils.Mean(energies)
	grad := make([]float64, len(cfg.angles))
	for i, d := range draws {
		adv := energies[i] - baseline
		for j, s := range d.Scores {
			grad[j] += adv * s
		}
	}

	inv := 1 / float64(len(draws))
	for j := range cfg.angles {
		cfg.angles[j] = utils.ClampFloat64(cfg.angles[j]-params.LearningRate*grad[j]*inv, 0, math.Pi/2)
	}

	return &batchOutcome{meanEnergy: baseline, energies: table}, nil
}

// stepSeed derives a deterministic per-config, per-update sampling seed.
// A zero trainer seed propagates as zero, keeping draws independent.
func (t *Trainer) stepSeed(ci, update int) int64 {
	if t.seed == 0 {
		return 0
	}
	s := t.seed + int64(ci+1)*1_000_003 + int64(uint64(update)*0x9e3779b97f4a7c15)
	if s == 0 {
		s = 1
	}
	return s
}

// result snapshots the final training outcome
func (t *Trainer) result(updates int) *models.TrainResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	energies := make(map[string][]float64, len(t.energies))
	for label, hist := range t.energies {
		energies[label] = append([]float64(nil), hist...)
	}
	return &models.TrainResult{
		BestBitstring:     t.bestKey,
		BestEnergy:        t.bestEnergy,
		Updates:           updates,
		DistinctSolutions: len(t.res),
		Energies:          energies,
	}
}

// Res returns the global table of every decoded bitstring seen so far with
// its energy
func (t *Trainer) Res() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.res))
	for k, v := range t.res {
		out[k] = v
	}
	return out
}

// Energies returns the per-configuration history of batch mean energies
func (t *Trainer) Energies() map[string][]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string][]float64, len(t.energies))
	for label, hist := range t.energies {
		out[label] = append([]float64(nil), hist...)
	}
	return out
}

// Best returns the lowest-energy bitstring found so far. The boolean is
// false before any sample has been evaluated.
func (t *Trainer) Best() (string, float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bestKey, t.bestEnergy, t.haveBest
}

// Labels returns the configuration labels in training order
func (t *Trainer) Labels() []string {
	labels := make([]string, len(t.configs))
	for i, cfg := range t.configs {
		labels[i] = cfg.label
	}
	return labels
}
