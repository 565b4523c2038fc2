// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates the request failed input validation.
var ErrValidation = errors.New("validation failed")

// ErrUnanswerable indicates that no query tier produced an answer.
// Callers degrade to suggestions instead of failing the request.
var ErrUnanswerable = errors.New("question could not be answered")
