package objective

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// QUBOObjective evaluates x^T Q x over bit vectors for a symmetric matrix Q
type QUBOObjective struct {
	q *mat.SymDense
	n int
}

// NewQUBO builds a QUBO objective from a square matrix. Asymmetric input is
// symmetrized as (Q + Q^T)/2, which leaves x^T Q x unchanged.
func NewQUBO(q [][]float64) (*QUBOObjective, error) {
	n := len(q)
	if n == 0 {
		return nil, fmt.Errorf("%w: QUBO matrix cannot be empty", ErrInvalidParameter)
	}
	sym := mat.NewSymDense(n, nil)
	for i, row := range q {
		if len(row) != n {
			return nil, fmt.Errorf("%w: QUBO row %d has %d entries, want %d", ErrInvalidParameter, i, len(row), n)
		}
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (row[j]+q[j][i])/2)
		}
	}
	return &QUBOObjective{q: sym, n: n}, nil
}

// NewMaxCutQUBO builds the Max-Cut QUBO for an undirected edge list over n
// nodes: per edge (i, j), Q[i][i] -= 1, Q[j][j] -= 1, Q[i][j] += 1,
// Q[j][i] += 1. The resulting energy of a partition vector is the negated
// cut size.
func NewMaxCutQUBO(edges [][]int, n int) (*QUBOObjective, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: node count must be positive, got %d", ErrInvalidParameter, n)
	}
	q := make([][]float64, n)
	for i := range q {
		q[i] = make([]float64, n)
	}
	for idx, edge := range edges {
		if len(edge) != 2 {
			return nil, fmt.Errorf("%w: edge %d must be a pair", ErrInvalidParameter, idx)
		}
		i, j := edge[0], edge[1]
		if i < 0 || i >= n || j < 0 || j >= n {
			return nil, fmt.Errorf("%w: edge %d references node outside [0, %d)", ErrInvalidParameter, idx, n)
		}
		if i == j {
			return nil, fmt.Errorf("%w: edge %d is a self-loop", ErrInvalidParameter, idx)
		}
		q[i][i]--
		q[j][j]--
		q[i][j]++
		q[j][i]++
	}
	return NewQUBO(q)
}

// Variables returns the dimension of the QUBO
func (o *QUBOObjective) Variables() int {
	return o.n
}

// Evaluate implements Objective as x^T Q x
func (o *QUBOObjective) Evaluate(bits []int) (float64, error) {
	if len(bits) != o.n {
		return 0, fmt.Errorf("%w: bit vector has %d entries, want %d", ErrInvalidParameter, len(bits), o.n)
	}
	x := mat.NewVecDense(o.n, nil)
	for i, b := range bits {
		if b != 0 && b != 1 {
			return 0, fmt.Errorf("%w: bits[%d] = %d is not binary", ErrInvalidParameter, i, b)
		}
		x.SetVec(i, float64(b))
	}

	var qx mat.VecDense
	qx.MulVec(o.q, x)
	return mat.Dot(x, &qx), nil
}
