package repository

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrJobExists         = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid job state transition")
)
