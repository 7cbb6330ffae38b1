package domain

import "errors"

var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("entity not found")
	// ErrForbidden indicates that the user is not authorized to perform the action.
	ErrForbidden = errors.New("action forbidden")
	// ErrInvalidInput indicates that the provided input data is invalid.
	ErrInvalidInput = errors.New("invalid input data")
	// ErrRatingExists indicates that a rater has already rated a specific node.
	ErrRatingExists = errors.New("rating already exists for this rater and node")
	// ErrRepository indicates a generic data persistence error.
	ErrRepository = errors.New("repository error")
)
