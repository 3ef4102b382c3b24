package params

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mpjuers/transmission/internal/model"
)

const symmetryTol = 1e-12

// DefaultMigration builds the island-model matrix: every off-diagonal entry
// is symbiontNm/(npop-1), the diagonal is zero, so each row sums to
// symbiontNm.
func DefaultMigration(npop int, symbiontNm float64) (*mat.Dense, error) {
	if npop < 2 {
		return nil, fmt.Errorf("%w: migration matrix requires at least 2 populations, got %d", model.ErrValidation, npop)
	}
	if symbiontNm <= 0 {
		return nil, fmt.Errorf("%w: symbiont Nm must be > 0, got %g", model.ErrValidation, symbiontNm)
	}
	rate := symbiontNm / float64(npop-1)
	m := mat.NewDense(npop, npop, nil)
	for i := 0; i < npop; i++ {
		for j := 0; j < npop; j++ {
			if i != j {
				m.Set(i, j, rate)
			}
		}
	}
	return m, nil
}

// RescaleMigration scales a user-supplied relative migration matrix by the
// single constant that makes its implied aggregate migration match
// symbiontNm: c = (1^T rel^-1 (Nm*1)) / npop. The input must be square,
// symmetric, and non-singular. The returned matrix has a zero diagonal.
func RescaleMigration(rel mat.Matrix, symbiontNm float64) (*mat.Dense, error) {
	r, c := rel.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: migration matrix must be square, got %dx%d", model.ErrValidation, r, c)
	}
	if r < 2 {
		return nil, fmt.Errorf("%w: migration matrix requires at least 2 populations, got %d", model.ErrValidation, r)
	}
	if symbiontNm <= 0 {
		return nil, fmt.Errorf("%w: symbiont Nm must be > 0, got %g", model.ErrValidation, symbiontNm)
	}
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if math.Abs(rel.At(i, j)-rel.At(j, i)) > symmetryTol {
				return nil, fmt.Errorf("%w: migration matrix must be symmetric (entries [%d,%d]=%g and [%d,%d]=%g)",
					model.ErrValidation, i, j, rel.At(i, j), j, i, rel.At(j, i))
			}
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(rel); err != nil {
		return nil, fmt.Errorf("%w: migration matrix is singular: %v", model.ErrNumerical, err)
	}

	// 1^T inv 1 collapses to the sum over all inverse entries.
	invSum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			invSum += inv.At(i, j)
		}
	}
	constant := symbiontNm * invSum / float64(r)

	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i == j {
				continue
			}
			out.Set(i, j, rel.At(i, j)*constant)
		}
	}
	return out, nil
}

// BuildMigration dispatches on whether a relative matrix was supplied: nil
// selects the uniform island model, otherwise the supplied matrix is
// validated and rescaled. A supplied matrix must match the layout size.
func BuildMigration(npop int, symbiontNm float64, rel mat.Matrix) (*mat.Dense, error) {
	if rel == nil {
		return DefaultMigration(npop, symbiontNm)
	}
	r, _ := rel.Dims()
	if r != npop {
		return nil, fmt.Errorf("%w: migration matrix size %d does not match %d populations", model.ErrValidation, r, npop)
	}
	return RescaleMigration(rel, symbiontNm)
}

// RecoverAggregate computes the aggregate migration parameter implied by a
// scaled matrix, npop / sum(inverse entries). For any matrix produced by
// DefaultMigration or RescaleMigration it round-trips to symbiontNm within
// floating-point tolerance.
func RecoverAggregate(m mat.Matrix) (float64, error) {
	r, c := m.Dims()
	if r != c {
		return 0, fmt.Errorf("%w: migration matrix must be square, got %dx%d", model.ErrValidation, r, c)
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return 0, fmt.Errorf("%w: migration matrix is singular: %v", model.ErrNumerical, err)
	}
	invSum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			invSum += inv.At(i, j)
		}
	}
	if invSum == 0 {
		return 0, fmt.Errorf("%w: inverse entries sum to zero", model.ErrNumerical)
	}
	return float64(r) / invSum, nil
}
