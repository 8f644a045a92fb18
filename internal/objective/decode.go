package objective

import "fmt"

// Decoder selects how an output configuration becomes a bit vector
type Decoder string

const (
	// DecoderThreshold sets a bit when its mode is occupied at all
	DecoderThreshold Decoder = "threshold"
	// DecoderParity sets a bit when its mode holds an odd photon count
	DecoderParity Decoder = "parity"
)

// ParseDecoder validates a decoder name
func ParseDecoder(name string) (Decoder, error) {
	switch Decoder(name) {
	case DecoderThreshold, DecoderParity:
		return Decoder(name), nil
	}
	return "", fmt.Errorf("%w: unknown decoder %q", ErrInvalidParameter, name)
}

// DecodeBits converts an output configuration into an m-bit vector using
// the given rule. Mode 0 is structurally empty in the single-loop layout,
// so bits are read from modes 1..m; the configuration must therefore have
// at least m+1 modes.
func DecodeBits(cfg []int, m int, rule Decoder) ([]int, error) {
	if m <= 0 {
		return nil, fmt.Errorf("%w: bit count must be positive, got %d", ErrInvalidParameter, m)
	}
	if len(cfg) < m+1 {
		return nil, fmt.Errorf("%w: configuration has %d modes, need at least %d for %d bits",
			ErrInvalidParameter, len(cfg), m+1, m)
	}

	bits := make([]int, m)
	for i := 0; i < m; i++ {
		n := cfg[i+1]
		switch rule {
		case DecoderThreshold:
			if n > 0 {
				bits[i] = 1
			}
		case DecoderParity:
			bits[i] = n % 2
		default:
			return nil, fmt.Errorf("%w: unknown decoder %q", ErrInvalidParameter, rule)
		}
	}
	return bits, nil
}

// DecodeWeights converts an output configuration into a normalized weight
// vector with bitsPerVariable consecutive modes pooled per variable
// (modes 1.. as in DecodeBits). Returns ErrDegenerateSample when no decoded
// group holds any photons; callers substitute a penalty energy for those.
func DecodeWeights(cfg []int, bitsPerVariable int) ([]float64, error) {
	if bitsPerVariable <= 0 {
		return nil, fmt.Errorf("%w: bits_per_variable must be positive, got %d", ErrInvalidParameter, bitsPerVariable)
	}
	usable := len(cfg) - 1
	if usable < bitsPerVariable {
		return nil, fmt.Errorf("%w: configuration has %d usable modes, need at least %d",
			ErrInvalidParameter, usable, bitsPerVariable)
	}

	vars := usable / bitsPerVariable
	raw := make([]float64, vars)
	total := 0
	for v := 0; v < vars; v++ {
		for b := 0; b < bitsPerVariable; b++ {
			n := cfg[1+v*bitsPerVariable+b]
			raw[v] += float64(n)
			total += n
		}
	}

	if total == 0 {
		return make([]float64, vars), ErrDegenerateSample
	}
	for v := range raw {
		raw[v] /= float64(total)
	}
	return raw, nil
}

// BitsKey renders a bit vector as a compact bitstring for table keys
func BitsKey(bits []int) string {
	buf := make([]byte, len(bits))
	for i, b := range bits {
		if b != 0 {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}
