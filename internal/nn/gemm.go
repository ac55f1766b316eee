package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// matmul computes c = op(a) * op(b) + beta*c where a is stored as ar x ac
// and b as br x bc.
func matmul(transA, transB bool, a []float32, ar, ac int, b []float32, br, bc int, beta float32, c []float32) {
	ta, tb := blas.NoTrans, blas.NoTrans
	m, n := ar, bc
	if transA {
		ta = blas.Trans
		m = ac
	}
	if transB {
		tb = blas.Trans
		n = br
	}
	blas32.Gemm(ta, tb, 1, general(ar, ac, a), general(br, bc, b), beta, general(m, n, c))
}
