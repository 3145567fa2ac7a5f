package estimator

import "errors"

var (
	// ErrOutOfOrderEvent indicates an ingested completion timestamp that is
	// not strictly greater than the previously recorded one. The event is
	// discarded; prior state is unchanged.
	ErrOutOfOrderEvent = errors.New("estimator: out-of-order completion event")

	// ErrInsufficientData indicates the rolling window does not yet hold
	// enough samples to produce a rate or wait estimate. Consumers must
	// surface an explicit "unknown" state rather than a fabricated number.
	ErrInsufficientData = errors.New("estimator: insufficient data")

	// ErrInvalidConfig indicates a non-positive capacity or threshold.
	ErrInvalidConfig = errors.New("estimator: invalid configuration")
)
