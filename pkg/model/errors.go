package model

import "errors"

var (
	// ErrUnknownPeriod indicates that a period string is not a supported window.
	ErrUnknownPeriod = errors.New("unknown period")
)
