// Package interferometer implements a classical simulator of a single-loop
// time-bin interferometer: a train of photons injected in sequential time
// bins interferes through one recirculating loop with a programmable beam
// splitter per interference event.
//
// The single-loop architecture has no coherent multi-path interference
// beyond adjacent time bins, so probability mass (not complex amplitude)
// is redistributed at each event. That simplification is what makes the
// simulation a first-order Markov recursion over the loop occupation and
// keeps it tractable for trains of hundreds of photons.
package interferometer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tbi-sim/tbi-core/pkg/utils"
)

// ErrInvalidParameter reports malformed inputs: negative photon counts,
// wrong angle-vector length, or angles outside [0, pi/2].
var ErrInvalidParameter = errors.New("invalid parameter")

// Configuration is a photon-number assignment to output modes.
type Configuration []int

// Total returns the total photon count of the configuration
func (c Configuration) Total() int {
	return utils.SumInts(c)
}

// Key returns a canonical map key for the configuration
func (c Configuration) Key() string {
	parts := make([]string, len(c))
	for i, n := range c {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// ParseKey parses a configuration key produced by Key
func ParseKey(key string) (Configuration, error) {
	if key == "" {
		return Configuration{}, nil
	}
	parts := strings.Split(key, ",")
	cfg := make(Configuration, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: bad configuration key %q", ErrInvalidParameter, key)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative occupation in key %q", ErrInvalidParameter, key)
		}
		cfg[i] = n
	}
	return cfg, nil
}

// Loop is a validated single-loop interferometer: an input photon train of
// N bins and N-1 beam-splitter angles, producing N+1 output modes.
//
// Mode convention: the loop delays every photon by at least one bin, so the
// first bin's photons enter the loop and mode 0 stays empty for N >= 1.
// Photons leaving at event i land in mode i; whatever remains in the loop
// after the last event flushes into mode N.
type Loop struct {
	input  []int
	angles []float64
	total  int
}

// NewLoop validates the photon train and angle vector and returns a Loop.
func NewLoop(input []int, angles []float64) (*Loop, error) {
	if err := Validate(input, angles); err != nil {
		return nil, err
	}
	l := &Loop{
		input:  append([]int(nil), input...),
		angles: append([]float64(nil), angles...),
		total:  utils.SumInts(input),
	}
	return l, nil
}

// Validate checks a photon train and angle vector without building a Loop.
func Validate(input []int, angles []float64) error {
	for i, n := range input {
		if n < 0 {
			return fmt.Errorf("%w: input_state[%d] is negative (%d)", ErrInvalidParameter, i, n)
		}
	}
	wantAngles := len(input) - 1
	if wantAngles < 0 {
		wantAngles = 0
	}
	if len(angles) != wantAngles {
		return fmt.Errorf("%w: need %d beam-splitter angles for %d input bins, got %d",
			ErrInvalidParameter, wantAngles, len(input), len(angles))
	}
	for i, a := range angles {
		if a < 0 || a > math.Pi/2 {
			return fmt.Errorf("%w: angles[%d] = %f outside [0, pi/2]", ErrInvalidParameter, i, a)
		}
	}
	return nil
}

// Modes returns the number of output modes (N+1, or 1 for an empty train)
func (l *Loop) Modes() int {
	return len(l.input) + 1
}

// Photons returns the total photon count of the input train
func (l *Loop) Photons() int {
	return l.total
}

// Angles returns a copy of the beam-splitter angle vector
func (l *Loop) Angles() []float64 {
	return append([]float64(nil), l.angles...)
}

// Draw produces one output configuration by running the loop recursion with
// stochastic binomial splits at every interference event.
func (l *Loop) Draw(rng *utils.RandSource) Configuration {
	cfg, _ := l.draw(rng, nil)
	return cfg
}

// DrawScored is Draw plus the per-angle score-function terms
// d log P / d theta for the realized splits. Events with a deterministic
// angle (theta of exactly 0 or pi/2) carry no gradient information and
// score zero.
func (l *Loop) DrawScored(rng *utils.RandSource) (Configuration, []float64) {
	scores := make([]float64, len(l.angles))
	cfg, _ := l.draw(rng, scores)
	return cfg, scores
}

// draw runs the recursion; when scores is non-nil it is filled in place.
func (l *Loop) draw(rng *utils.RandSource, scores []float64) (Configuration, []float64) {
	out := make(Configuration, l.Modes())
	if len(l.input) == 0 {
		return out, scores
	}

	// Bin 0 has nothing in the loop to interfere with: all photons enter.
	loop := l.input[0]

	for i := 1; i < len(l.input); i++ {
		theta := l.angles[i-1]
		cos := math.Cos(theta)
		r := cos * cos
		arriving := l.input[i]

		// Loop photons stay with probability cos^2(theta); arriving photons
		// enter the loop with probability sin^2(theta). Everything else
		// exits into output mode i.
		stay := rng.Binomial(loop, r)
		enter := rng.Binomial(arriving, 1-r)
		out[i] = (loop - stay) + (arriving - enter)

		if scores != nil && r > 0 && r < 1 {
			d := math.Sin(2 * theta)
			var g float64
			if loop > 0 {
				g -= d * (float64(stay)/r - float64(loop-stay)/(1-r))
			}
			if arriving > 0 {
				g += d * (float64(enter)/(1-r) - float64(arriving-enter)/r)
			}
			scores[i-1] = g
		}

		loop = stay + enter
	}

	// Final loop content exits one bin after the last event.
	out[l.Modes()-1] = loop
	return out, scores
}
