package entity

import "errors"

var (
	ErrEntityNotFound = errors.New("entity not found")
	// ErrInvalidPath means a path segment named a field that is not a relation
	ErrInvalidPath = errors.New("invalid relation path")
	// ErrUnknownField means a path segment or leaf matched no field at all
	ErrUnknownField = errors.New("unknown field")
)
