// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrValidation indicates that an input failed shape or content validation.
// Handlers map it to a 400 response.
var ErrValidation = errors.New("validation failed")
