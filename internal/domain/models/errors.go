package models

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInsufficientData = errors.New("insufficient data")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrInvalidRoute     = errors.New("invalid route")
)
