package leveling

import "errors"

// Sentinel kinds for leveling errors.
var (
	ErrUnknownAction = errors.New("unknown action kind")
	ErrNegativeXP    = errors.New("negative xp amount")
)
