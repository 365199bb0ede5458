package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotInitialized = errors.New("user not initialized")
	ErrClosed         = errors.New("store closed")
)
