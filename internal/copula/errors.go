package copula

import "errors"

var (
	// ErrConfigMismatch indicates inconsistent lengths, orders, names or kinds
	// between marginals, control, covariance and mean inputs.
	ErrConfigMismatch = errors.New("copula: config mismatch")

	// ErrInvalidCopulaType indicates a copula type outside {spatial, temporal}.
	ErrInvalidCopulaType = errors.New("copula: invalid copula type")

	// ErrSamplingFailure indicates the multivariate Gaussian draw could not be
	// set up: non-positive-semidefinite covariance, or a dimension that does
	// not match the expected location/horizon count.
	ErrSamplingFailure = errors.New("copula: sampling failure")

	// ErrTransformFailure indicates the PIT inverse or a quantile-function
	// evaluation failed for some row.
	ErrTransformFailure = errors.New("copula: transform failure")
)
