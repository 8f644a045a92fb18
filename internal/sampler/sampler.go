// Package sampler draws independent samples from the interferometer's
// output distribution and aggregates them into occurrence counts.
package sampler

import (
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/tbi-sim/tbi-core/internal/interferometer"
	"github.com/tbi-sim/tbi-core/pkg/utils"
)

// chunkSize fixes how many draws share one derived seed. Chunking is by a
// constant, not by worker count, so results are reproducible regardless of
// GOMAXPROCS or scheduling.
const chunkSize = 256

// Counts maps a configuration key to its occurrence count
type Counts map[string]int

// Total returns the sum of all counts
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Draw is a single sampled configuration with its per-angle score terms
type Draw struct {
	Config interferometer.Configuration
	Scores []float64
}

// Sample draws nSamples independent output configurations for the given
// photon train and angle vector and aggregates them into counts. A zero
// seed gives independent draws per call; any other seed makes the call
// deterministic.
func Sample(input []int, angles []float64, nSamples int, seed int64) (Counts, error) {
	loop, err := interferometer.NewLoop(input, angles)
	if err != nil {
		return nil, err
	}

	counts := make(Counts)
	if nSamples <= 0 {
		return counts, nil
	}

	base := baseSeed(seed)
	chunks := chunkBounds(nSamples)
	partial := make([]Counts, len(chunks))

	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0))
	for ci, n := range chunks {
		p.Go(func() {
			rng := utils.NewRandSource(chunkSeed(base, ci))
			local := make(Counts)
			for i := 0; i < n; i++ {
				local[loop.Draw(rng).Key()]++
			}
			partial[ci] = local
		})
	}
	p.Wait()

	for _, local := range partial {
		for key, n := range local {
			counts[key] += n
		}
	}
	return counts, nil
}

// SampleScored draws nSamples configurations together with their per-angle
// score-function terms, for gradient estimation. Same determinism contract
// as Sample.
func SampleScored(input []int, angles []float64, nSamples int, seed int64) ([]Draw, error) {
	loop, err := interferometer.NewLoop(input, angles)
	if err != nil {
		return nil, err
	}
	if nSamples <= 0 {
		return nil, nil
	}

	base := baseSeed(seed)
	chunks := chunkBounds(nSamples)
	draws := make([]Draw, nSamples)

	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0))
	offset := 0
	for ci, n := range chunks {
		start := offset
		offset += n
		p.Go(func() {
			rng := utils.NewRandSource(chunkSeed(base, ci))
			for i := 0; i < n; i++ {
				cfg, scores := loop.DrawScored(rng)
				draws[start+i] = Draw{Config: cfg, Scores: scores}
			}
		})
	}
	p.Wait()

	return draws, nil
}

// chunkBounds splits nSamples into fixed-size chunks
func chunkBounds(nSamples int) []int {
	var chunks []int
	for remaining := nSamples; remaining > 0; remaining -= chunkSize {
		n := chunkSize
		if remaining < chunkSize {
			n = remaining
		}
		chunks = append(chunks, n)
	}
	return chunks
}

var (
	fallbackMu   sync.Mutex
	fallbackSeed int64
)

// baseSeed resolves a caller seed; zero means a fresh time-based seed
func baseSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	s := time.Now().UnixNano() ^ fallbackSeed
	fallbackSeed++
	if s == 0 {
		s = 1
	}
	return s
}

// chunkSeed derives a distinct deterministic seed per chunk
func chunkSeed(base int64, chunk int) int64 {
	s := base + int64(uint64(chunk)*0x9e3779b97f4a7c15)
	if s == 0 {
		s = 1
	}
	return s
}
