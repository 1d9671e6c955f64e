package store

import "errors"

var (
	ErrNotFound = errors.New("interaction record not found")
)
