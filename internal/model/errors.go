package model

import "errors"

var (
	// ErrValidation indicates malformed caller input: bad parameter ranges,
	// malformed matrices, or mismatched dimensions.
	ErrValidation = errors.New("transmission: invalid input")
	// ErrNumerical indicates a numerical failure such as a singular
	// migration matrix or a non-positive transform intermediate.
	ErrNumerical = errors.New("transmission: numerical failure")
	// ErrDataIntegrity indicates a NaN surfaced in a computed statistic.
	ErrDataIntegrity = errors.New("transmission: data integrity violation")
	// ErrEngine indicates a failure inside the coalescent engine.
	ErrEngine = errors.New("transmission: simulation engine failure")
)
