package interferometer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// maxDistributionPhotons bounds exact enumeration; beyond this the state
// space is too large and callers should sample instead.
const maxDistributionPhotons = 16

// Distribution computes the exact probability of every reachable output
// configuration by dynamic programming over (emitted prefix, loop
// occupation). The map is keyed by Configuration.Key and its values sum
// to 1. Intended for small systems; use Draw/the sampler for large trains.
func (l *Loop) Distribution() (map[string]float64, error) {
	if l.total > maxDistributionPhotons {
		return nil, fmt.Errorf("%w: exact distribution limited to %d photons, train has %d",
			ErrInvalidParameter, maxDistributionPhotons, l.total)
	}

	type state struct {
		out  Configuration
		loop int
	}

	modes := l.Modes()
	if len(l.input) == 0 {
		empty := make(Configuration, modes)
		return map[string]float64{empty.Key(): 1}, nil
	}

	cur := map[string]state{}
	probs := map[string]float64{}
	start := state{out: make(Configuration, modes), loop: l.input[0]}
	cur[stateKey(start.out, start.loop)] = start
	probs[stateKey(start.out, start.loop)] = 1

	for i := 1; i < len(l.input); i++ {
		theta := l.angles[i-1]
		r := cosSquared(theta)
		arriving := l.input[i]

		next := map[string]state{}
		nextProbs := map[string]float64{}

		for key, st := range cur {
			p := probs[key]
			for stay := 0; stay <= st.loop; stay++ {
				pStay := binomProb(st.loop, stay, r)
				if pStay == 0 {
					continue
				}
				for enter := 0; enter <= arriving; enter++ {
					pEnter := binomProb(arriving, enter, 1-r)
					if pEnter == 0 {
						continue
					}
					out := append(Configuration(nil), st.out...)
					out[i] = (st.loop - stay) + (arriving - enter)
					ns := state{out: out, loop: stay + enter}
					nk := stateKey(out, ns.loop)
					next[nk] = ns
					nextProbs[nk] += p * pStay * pEnter
				}
			}
		}

		cur = next
		probs = nextProbs
	}

	// Flush remaining loop photons into the last mode.
	result := make(map[string]float64, len(cur))
	for key, st := range cur {
		out := append(Configuration(nil), st.out...)
		out[modes-1] = st.loop
		result[out.Key()] += probs[key]
	}
	return result, nil
}

func stateKey(out Configuration, loop int) string {
	return fmt.Sprintf("%s|%d", out.Key(), loop)
}

func cosSquared(theta float64) float64 {
	c := math.Cos(theta)
	return c * c
}

// binomProb is the Binomial(n, p) PMF at k with deterministic endpoints.
func binomProb(n, k int, p float64) float64 {
	if n == 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	if p <= 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	if p >= 1 {
		if k == n {
			return 1
		}
		return 0
	}
	return distuv.Binomial{N: float64(n), P: p}.Prob(float64(k))
}
