package repository

import "errors"

// ErrNotFound indicates an entity was not located or not owned by the caller.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicate indicates a unique-constraint violation.
var ErrDuplicate = errors.New("repository: duplicate")
