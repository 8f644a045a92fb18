package utils

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ClampFloat64 clamps a float64 value between min and max
func ClampFloat64(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Mean calculates the mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// Sum calculates the sum of a slice of float64 values
func Sum(values []float64) float64 {
	return floats.Sum(values)
}

// SumInts calculates the sum of a slice of int values
func SumInts(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

// Percentile calculates the percentile of a slice of float64 values.
// percentile should be between 0 and 100.
func Percentile(values []float64, percentile float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	p := ClampFloat64(percentile/100.0, 0, 1)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// ArgMin returns the index of the smallest value, or -1 for an empty slice
func ArgMin(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MinIdx(values)
}
