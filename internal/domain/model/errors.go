package model

import "errors"

// Storage error kinds shared by every store implementation.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrStatusConflict = errors.New("status precondition failed")
)
