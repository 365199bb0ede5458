package dimension

import "errors"

// Sentinel kinds for dimension errors.
var (
	ErrUnknownDimension = errors.New("unknown dimension")
)
