package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateSymbol  = errors.New("symbol already registered")
	ErrEmptySymbol      = errors.New("symbol cannot be empty")
	ErrUpstream         = errors.New("upstream price fetch failed")
	ErrStoreUnavailable = errors.New("timestamp store unavailable")
	ErrRunInProgress    = errors.New("sync run already in progress")
)
