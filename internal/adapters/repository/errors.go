package repository

import "github.com/M3-org/clanktank-sub000/internal/domain/model"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = model.ErrNotFound
	ErrAlreadyExists  = model.ErrAlreadyExists
	ErrStatusConflict = model.ErrStatusConflict
)
